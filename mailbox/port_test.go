package mailbox

import (
	"testing"

	"tinykernel/kernel"
)

func TestPortCreateLookupDelete(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	reg := NewPortRegistry(sems)
	owner := kernel.ProcID(0)

	p, err := reg.Create("console", owner)
	if err != nil {
		t.Fatalf("port_create: %v", err)
	}
	if p.Name() != "console" || p.Owner() != owner {
		t.Fatalf("unexpected port identity: name=%q owner=%d", p.Name(), p.Owner())
	}

	if _, err := reg.Create("console", owner); err == nil {
		t.Fatal("expected error creating a duplicate port name")
	}

	got, err := reg.Lookup("console")
	if err != nil {
		t.Fatalf("port_lookup: %v", err)
	}
	if got != p {
		t.Fatal("lookup returned a different port")
	}

	if err := reg.Delete("console", owner); err != nil {
		t.Fatalf("port_delete: %v", err)
	}
	if _, err := reg.Lookup("console"); err == nil {
		t.Fatal("expected error looking up a deleted port")
	}
}

func TestPortDeleteRequiresOwner(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	reg := NewPortRegistry(sems)
	if _, err := reg.Create("shared", kernel.ProcID(0)); err != nil {
		t.Fatalf("port_create: %v", err)
	}
	if err := reg.Delete("shared", kernel.ProcID(7)); err == nil {
		t.Fatal("expected error deleting a port the caller does not own")
	}
	if _, err := reg.Lookup("shared"); err != nil {
		t.Fatalf("port must survive a rejected delete: %v", err)
	}
}

func TestPortLookupUnknown(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	reg := NewPortRegistry(sems)
	if _, err := reg.Lookup("nope"); err == nil {
		t.Fatal("expected error looking up an unknown port name")
	}
}

func TestPortCarriesMessages(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	reg := NewPortRegistry(sems)
	p, err := reg.Create("data", kernel.ProcID(0))
	if err != nil {
		t.Fatalf("port_create: %v", err)
	}

	for i := int32(1); i <= 3; i++ {
		if err := p.Send(i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := int32(1); i <= 3; i++ {
		got, err := p.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if got != i {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
	if p.Capacity() != PortCapacity {
		t.Fatalf("expected capacity %d, got %d", PortCapacity, p.Capacity())
	}
}

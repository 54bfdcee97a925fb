package netaddr_test

import (
	"context"
	"net"
	"testing"

	"github.com/momentics/netloop/netaddr"
)

func TestParseNumericIPv4(t *testing.T) {
	ep, err := netaddr.Parse("tcp://127.0.0.1:8080")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Family != netaddr.FamilyIPv4 {
		t.Fatalf("expected IPv4 family")
	}
	if ep.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", ep.Port)
	}
	if ep.String() != "127.0.0.1:8080" {
		t.Fatalf("unexpected string form %q", ep.String())
	}
}

func TestParseDefaultsToTCP(t *testing.T) {
	ep, err := netaddr.Parse("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Proto != netaddr.ProtoTCP {
		t.Fatalf("expected default proto tcp")
	}
	if ep.Port != 0 {
		t.Fatalf("expected port 0 (OS-assigned), got %d", ep.Port)
	}
}

func TestParseIPv6(t *testing.T) {
	ep, err := netaddr.Parse("udp://[::1]:53")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Family != netaddr.FamilyIPv6 {
		t.Fatalf("expected IPv6 family")
	}
	if ep.Proto != netaddr.ProtoUDP {
		t.Fatalf("expected udp proto")
	}
}

func TestParseMissingHostFails(t *testing.T) {
	if _, err := netaddr.Parse("tcp://:80"); err == nil {
		t.Fatal("expected error for missing host in Parse (use ParseBind for bind-all)")
	}
}

func TestParseBindAllowsEmptyHost(t *testing.T) {
	ep, err := netaddr.ParseBind(":9000")
	if err != nil {
		t.Fatal(err)
	}
	if !ep.IsUnspecified() {
		t.Fatalf("expected unspecified (bind-all) address")
	}
	if ep.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", ep.Port)
	}
}

func TestParseBindBarePort(t *testing.T) {
	ep, err := netaddr.ParseBind("0")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Port != 0 {
		t.Fatalf("expected port 0, got %d", ep.Port)
	}
}

type fakeResolver struct {
	ips []net.IP
	err error
}

func (f fakeResolver) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	return f.ips, f.err
}

func TestParseResolvesName(t *testing.T) {
	r := fakeResolver{ips: []net.IP{net.ParseIP("93.184.216.34")}}
	ep, err := netaddr.ParseWithResolver("tcp://example.invalid:80", r)
	if err != nil {
		t.Fatal(err)
	}
	if ep.IP.String() != "93.184.216.34" {
		t.Fatalf("unexpected resolved IP %v", ep.IP)
	}
}

func TestParseResolverErrorFailsConnect(t *testing.T) {
	r := fakeResolver{err: net.UnknownNetworkError("boom")}
	if _, err := netaddr.ParseWithResolver("tcp://nowhere.invalid:80", r); err == nil {
		t.Fatal("expected resolver error to propagate")
	}
}

func TestNetStringVariants(t *testing.T) {
	ep4, _ := netaddr.Parse("tcp://127.0.0.1:1")
	if ep4.NetString() != "tcp4" {
		t.Fatalf("got %q", ep4.NetString())
	}
	ep6, _ := netaddr.Parse("udp://[::1]:1")
	if ep6.NetString() != "udp6" {
		t.Fatalf("got %q", ep6.NetString())
	}
}

package scan

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startPTRServer runs a UDP DNS server on loopback that answers every PTR
// question with the given name.
func startPTRServer(t *testing.T, name string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			if len(req.Question) == 1 && req.Question[0].Qtype == dns.TypePTR {
				m.Answer = append(m.Answer, &dns.PTR{
					Hdr: dns.RR_Header{
						Name:   req.Question[0].Name,
						Rrtype: dns.TypePTR,
						Class:  dns.ClassINET,
						Ttl:    60,
					},
					Ptr: name,
				})
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolver_AnnotatesAddresses(t *testing.T) {
	server := startPTRServer(t, "gateway.test.local.")

	r := &Resolver{Server: server, Timeout: 2 * time.Second}
	addr := netip.MustParseAddr("192.0.2.1")
	names := r.Resolve(context.Background(), []netip.Addr{addr}, 4)

	if got := names[addr]; got != "gateway.test.local" {
		t.Errorf("name = %q, want gateway.test.local (trailing dot trimmed)", got)
	}
}

func TestResolver_FailureYieldsNoAnnotation(t *testing.T) {
	// A closed UDP port: queries go unanswered and time out.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	server := pc.LocalAddr().String()
	pc.Close()

	r := &Resolver{Server: server, Timeout: 200 * time.Millisecond}
	addr := netip.MustParseAddr("192.0.2.1")
	names := r.Resolve(context.Background(), []netip.Addr{addr}, 4)

	if len(names) != 0 {
		t.Errorf("got %v, want no annotations on lookup failure", names)
	}
}

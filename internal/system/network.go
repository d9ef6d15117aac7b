package system

import (
	"context"
	"strings"

	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// NMNetwork probes and remedies connectivity through NetworkManager.
type NMNetwork struct {
	run runner.Runner
	svc ServiceController

	// Probe target for the ping test. Defaults to a public anycast resolver.
	PingTarget string

	// Interface expected to carry the uplink.
	Device string
}

var _ Network = (*NMNetwork)(nil)

func NewNMNetwork(run runner.Runner, svc ServiceController) *NMNetwork {
	return &NMNetwork{
		run:        run,
		svc:        svc,
		PingTarget: "8.8.8.8",
		Device:     "wlan0",
	}
}

// Connected tests real connectivity beyond link association: the wlan device
// must report connected in nmcli AND a single short ping must succeed.
func (n *NMNetwork) Connected(ctx context.Context) bool {
	res, err := n.run.Probe(ctx, "nmcli", "-t", "-f", "DEVICE,STATE", "device", "status")
	if err != nil {
		log.Warn("nmcli probe failed", "err", err)
		return false
	}
	if !strings.Contains(res.Stdout, n.Device+":connected") {
		return false
	}

	ping, err := n.run.Probe(ctx, "ping", "-c", "1", "-W", "2", n.PingTarget)
	if err != nil {
		log.Warn("ping probe failed", "err", err)
		return false
	}
	return ping.ExitCode == 0
}

// RestartManagement restarts the network management service, the first-line
// remedy for a persistent outage.
func (n *NMNetwork) RestartManagement(ctx context.Context) error {
	log.Info("restarting network management service")
	return n.svc.Restart(ctx, NetworkManagerService)
}

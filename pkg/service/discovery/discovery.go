package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/config"
)

// ServiceType is the DNS-SD service type of the API.
const ServiceType = "_mfctext._tcp"

const retryInterval = 30 * time.Second

// prefixes of container and VPN interfaces which mDNS shouldn't be sent on
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// filterInterfaces keeps interfaces that are up, multicast capable and not
// loopback or virtual.
func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 ||
			isVirtualInterface(iface.Name) {
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

// Service advertises the API on the local network so clients can find it
// without knowing the address.
type Service struct {
	mu      sync.Mutex
	cfg     *config.UserConfig
	server  *zeroconf.Server
	stopped bool
}

func New(cfg *config.UserConfig) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) instanceName() string {
	if name := s.cfg.GetInstanceName(); name != "" {
		return name
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.Warn().Err(err).Msg("failed to get hostname, using app name")
		return config.AppName
	}

	return config.AppName + "-" + hostname
}

func (s *Service) register() error {
	port, err := strconv.Atoi(s.cfg.GetApiPort())
	if err != nil {
		return fmt.Errorf("invalid api port: %w", err)
	}

	all, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("list network interfaces: %w", err)
	}

	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		return fmt.Errorf("no suitable network interfaces")
	}

	server, err := zeroconf.Register(
		s.instanceName(),
		ServiceType,
		"local.",
		port,
		[]string{"version=" + config.Version},
		ifaces,
	)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		server.Shutdown()
		return nil
	}
	s.server = server

	log.Info().Msgf("advertising %s on port %d", ServiceType, port)
	return nil
}

// Run advertises the service until ctx is done, retrying while the network
// isn't ready.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.GetDiscovery() {
		log.Info().Msg("mDNS discovery disabled")
		return nil
	}

	defer s.Stop()

	for {
		err := s.register()
		if err == nil {
			break
		}
		log.Debug().Err(err).Msg("mDNS registration failed, retrying")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryInterval):
		}
	}

	<-ctx.Done()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
}

package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	consul "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Consul discovers peers from the health catalog of a Consul service. Members whose
// checks are critical are skipped.
type Consul struct {
	api     *consul.Client
	service string
	self    string
	logger  *zap.Logger
}

// NewConsul builds a Consul discoverer. A nil config uses the agent defaults, read from
// the CONSUL_* environment variables.
func NewConsul(logger *zap.Logger, config *consul.Config, service, self string) (*Consul, error) {
	if config == nil {
		config = consul.DefaultConfig()
		config.HttpClient = http.DefaultClient
	}
	api, err := consul.NewClient(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create consul client")
	}
	return &Consul{
		api:     api,
		service: service,
		self:    self,
		logger:  logger,
	}, nil
}

func (c *Consul) Peers(ctx context.Context) ([]string, error) {
	services, _, err := c.api.Health().Service(c.service, "", false, (&consul.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list instances of service %q", c.service)
	}
	peers := []string{}
	for _, service := range services {
		if service.Checks.AggregatedStatus() == consul.HealthCritical {
			continue
		}
		address := service.Service.Address
		if address == "" && service.Node != nil {
			address = service.Node.Address
		}
		peer := net.JoinHostPort(address, strconv.Itoa(service.Service.Port))
		if peer == c.self {
			continue
		}
		c.logger.Debug("discovered node", zap.String("node_address", peer), zap.String("node_health", service.Checks.AggregatedStatus()))
		peers = append(peers, peer)
	}
	return peers, nil
}

// Register publishes the local node in the catalog, with a TCP check on its gossip
// address.
func (c *Consul) Register(id string) error {
	host, port, err := net.SplitHostPort(c.self)
	if err != nil {
		return err
	}
	intPort, err := strconv.Atoi(port)
	if err != nil {
		return err
	}
	return c.api.Agent().ServiceRegister(&consul.AgentServiceRegistration{
		ID:      id,
		Name:    c.service,
		Address: host,
		Port:    intPort,
		Meta: map[string]string{
			"node_id": id,
		},
		Check: &consul.AgentServiceCheck{
			CheckID:                        fmt.Sprintf("check-tcp-%s-%s", c.service, id),
			Name:                           fmt.Sprintf("TCP Check on address %s", c.self),
			DeregisterCriticalServiceAfter: "5m",
			TCP:                            c.self,
			Interval:                       "10s",
			Timeout:                        "2s",
		},
	})
}

func (c *Consul) Deregister(id string) error {
	return c.api.Agent().ServiceDeregister(id)
}

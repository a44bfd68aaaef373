package discovery

import (
	"fmt"
	"net"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type Registration struct {
	ID      string
	Name    string
	Address string // host or host:port reachable by consul
	Port    int
}

// Consul registers this instance and resolves collaborators.
type Consul struct {
	client *consulapi.Client
	log    *zap.Logger
}

func NewConsul(addr string, logger *zap.Logger) (*Consul, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Consul{client: client, log: logger}, nil
}

// Register adds the service with an HTTP check on /healthz and returns the
// service id it was registered under.
func (c *Consul) Register(r Registration) (string, error) {
	host := r.Address
	if h, p, err := net.SplitHostPort(r.Address); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil && r.Port == 0 {
			r.Port = n
		}
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("%s-%s-%d", r.Name, host, r.Port)
	}
	reg := &consulapi.AgentServiceRegistration{
		ID:      r.ID,
		Name:    r.Name,
		Address: host,
		Port:    r.Port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", host, r.Port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := c.client.Agent().ServiceRegister(reg); err != nil {
		return "", err
	}
	c.log.Info("registered with consul", zap.String("id", r.ID), zap.String("address", host), zap.Int("port", r.Port))
	return r.ID, nil
}

func (c *Consul) Deregister(id string) error {
	return c.client.Agent().ServiceDeregister(id)
}

// Lookup returns the base URL of the first healthy instance of service.
func (c *Consul) Lookup(service string) (string, error) {
	entries, _, err := c.client.Health().Service(service, "", true, nil)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no healthy instances for %s", service)
	}
	e := entries[0]
	addr := e.Service.Address
	if addr == "" {
		addr = e.Node.Address
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(addr, strconv.Itoa(e.Service.Port))), nil
}

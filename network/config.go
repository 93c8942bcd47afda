package network

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Configuration describes where a listener binds, and the address peers use to reach it.
type Configuration struct {
	ID                string
	Name              string
	AdvertisedAddress string
	AdvertisedPort    int
	BindAddress       string
	BindPort          int
}

// RandomFreePort returns a TCP port currently free on host.
func RandomFreePort(host string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// PrivateHost returns the first IPv4 address of an up, non loopback interface.
func PrivateHost() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, v := range ifaces {
		if v.Flags&net.FlagLoopback == net.FlagLoopback || v.Flags&net.FlagUp != net.FlagUp {
			continue
		}
		if len(v.HardwareAddr.String()) == 0 {
			continue
		}
		addresses, _ := v.Addrs()
		if len(addresses) > 0 {
			if ipnet, ok := addresses[0].(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP.String(), nil
				}
			}
		}
	}
	return "", errors.New("could not find a valid network interface")
}

func advertisedAddressFlagName(name string) string {
	return fmt.Sprintf("%s-advertised-address", name)
}
func advertisedPortFlagName(name string) string {
	return fmt.Sprintf("%s-advertised-port", name)
}
func bindAddressFlagName(name string) string {
	return fmt.Sprintf("%s-bind-address", name)
}
func bindPortFlagName(name string) string {
	return fmt.Sprintf("%s-bind-port", name)
}

// Describe summarizes where the listener binds and how it is advertised.
func (c Configuration) Describe() string {
	return fmt.Sprintf("%s listener bound on %s:%d, advertised as %s:%d",
		c.Name,
		c.BindAddress, c.BindPort,
		c.AdvertisedAddress, c.AdvertisedPort,
	)
}

// ConfigurationFromFlags reads the listener configuration registered under name. A
// zero bind port is replaced with a free port, empty advertised values default to the
// bind values.
func ConfigurationFromFlags(v *viper.Viper, name string) (Configuration, error) {
	config := Configuration{
		ID:                v.GetString(fmt.Sprintf("%s-service-id", name)),
		Name:              name,
		AdvertisedAddress: v.GetString(advertisedAddressFlagName(name)),
		AdvertisedPort:    v.GetInt(advertisedPortFlagName(name)),
		BindAddress:       v.GetString(bindAddressFlagName(name)),
		BindPort:          v.GetInt(bindPortFlagName(name)),
	}

	if len(config.ID) == 0 {
		config.ID = uuid.New().String()
	}
	if len(config.AdvertisedAddress) == 0 {
		config.AdvertisedAddress = config.BindAddress
	}
	if config.BindPort == 0 {
		randomPort, err := RandomFreePort(config.BindAddress)
		if err != nil {
			return config, errors.Wrapf(err, "failed to pick a port for %s", name)
		}
		config.BindPort = randomPort
	}
	if config.AdvertisedPort == 0 {
		config.AdvertisedPort = config.BindPort
	}
	if net.ParseIP(config.BindAddress) == nil {
		return config, errors.Errorf("invalid bind address specified for %s: %q", name, config.BindAddress)
	}
	if net.ParseIP(config.AdvertisedAddress) == nil {
		return config, errors.Errorf("invalid advertised address specified for %s: %q", name, config.AdvertisedAddress)
	}
	if config.AdvertisedPort < 1024 || config.AdvertisedPort > 65535 {
		return config, errors.Errorf("invalid advertised port specified for %s: %d", name, config.AdvertisedPort)
	}
	if config.BindPort < 1024 || config.BindPort > 65535 {
		return config, errors.Errorf("invalid bind port specified for %s: %d", name, config.BindPort)
	}
	return config, nil
}

// RegisterFlagsForService registers the bind and advertise flags of the listener name
// on cmd, and binds them into config.
func RegisterFlagsForService(cmd *cobra.Command, config *viper.Viper, name string, defaultPort int) {
	long := bindPortFlagName(name)
	longAddr := bindAddressFlagName(name)
	advLong := advertisedPortFlagName(name)
	advLongAddr := advertisedAddressFlagName(name)

	defaultAddr, err := PrivateHost()
	if err != nil {
		defaultAddr = "127.0.0.1"
	}
	serviceID := fmt.Sprintf("%s-service-id", name)
	cmd.Flags().StringP(serviceID, "", uuid.New().String(), fmt.Sprintf("%s unique id", name))
	config.BindPFlag(serviceID, cmd.Flags().Lookup(serviceID))

	cmd.Flags().IntP(long, "", defaultPort, fmt.Sprintf("Start %s listener on this port", name))
	config.BindPFlag(long, cmd.Flags().Lookup(long))
	config.BindEnv(long, fmt.Sprintf("NOMAD_PORT_%s", name))

	cmd.Flags().StringP(longAddr, "", defaultAddr, fmt.Sprintf("Start %s listener on this address", name))
	config.BindPFlag(longAddr, cmd.Flags().Lookup(longAddr))

	cmd.Flags().StringP(advLongAddr, "", defaultAddr, fmt.Sprintf("Advertise %s listener on this address", name))
	config.BindPFlag(advLongAddr, cmd.Flags().Lookup(advLongAddr))
	config.BindEnv(advLongAddr, fmt.Sprintf("NOMAD_IP_%s", name))

	cmd.Flags().IntP(advLong, "", 0, fmt.Sprintf("Advertise %s listener on this port", name))
	config.BindPFlag(advLong, cmd.Flags().Lookup(advLong))
	config.BindEnv(advLong, fmt.Sprintf("NOMAD_HOST_PORT_%s", name))
}

package command

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
)

const GetImage = "GET_IMAGE"

var ErrInvalidName = errors.New("command: invalid feature name")

// Thresholds are the device alarm parameters sent with SET_THRESH.
type Thresholds struct {
	Alarm      float64 `json:"alarm"`
	Slope      float64 `json:"slope"`
	Diffusion  float64 `json:"diffusion"`
	IntervalMS int     `json:"interval_ms"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Alarm: 30.0, Slope: 2.0, Diffusion: 1.2, IntervalMS: 100}
}

// SetThresh renders SET_THRESH:D1=<alarm>,D2=<slope>,D3=<diffusion>,D4=<interval_ms>.
func SetThresh(t Thresholds) string {
	return fmt.Sprintf("SET_THRESH:D1=%s,D2=%s,D3=%s,D4=%d",
		formatFloat(t.Alarm), formatFloat(t.Slope), formatFloat(t.Diffusion), t.IntervalMS)
}

// Enable renders ENABLE_<NAME>=<0|1>. The name is upper-cased and must be a
// plain identifier so it cannot smuggle separators into the datagram.
func Enable(name string, on bool) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "", ErrInvalidName
	}
	for _, r := range name {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	v := "0"
	if on {
		v = "1"
	}
	return "ENABLE_" + name + "=" + v, nil
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Transport is satisfied by channel.Pair.
type Transport interface {
	SendReport(b []byte, peer *net.UDPAddr) error
}

// Commander sends fire-and-forget command datagrams to the device.
type Commander struct {
	log       *slog.Logger
	transport Transport
	device    func() string
}

// NewCommander resolves the device address through device on every send so a
// network change applies to the next command.
func NewCommander(log *slog.Logger, transport Transport, device func() string) *Commander {
	return &Commander{
		log:       log.With(slog.String("component", "command")),
		transport: transport,
		device:    device,
	}
}

func (c *Commander) SetThresh(t Thresholds) error {
	return c.Send(SetThresh(t))
}

func (c *Commander) RequestImage() error {
	return c.Send(GetImage)
}

func (c *Commander) Enable(name string, on bool) error {
	cmd, err := Enable(name, on)
	if err != nil {
		return err
	}
	return c.Send(cmd)
}

func (c *Commander) Send(cmd string) error {
	addr := c.device()
	peer, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("resolve device %s: %w", addr, err)
	}

	if err := c.transport.SendReport([]byte(cmd), peer); err != nil {
		c.log.Warn("command not sent", slog.String("cmd", cmd), slog.String("device", addr), sl.Err(err))
		return err
	}

	c.log.Info("command sent", slog.String("cmd", cmd), slog.String("device", addr))
	return nil
}

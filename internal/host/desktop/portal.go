package desktop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	backgroundIface = "org.freedesktop.portal.Background"
	requestIface    = "org.freedesktop.portal.Request"
)

// flatpakInfo exists inside a Flatpak sandbox, where the autostart
// directory is not writable and the Background portal must be asked instead.
const flatpakInfo = "/.flatpak-info"

// Sandboxed reports whether the process runs inside a Flatpak sandbox.
func Sandboxed() bool {
	_, err := os.Stat(flatpakInfo)
	return err == nil
}

// Portal requests autostart through xdg-desktop-portal.
type Portal struct {
	conn *dbus.Conn
	mu   sync.Mutex
	seq  int
}

// NewPortal connects to the session bus.
func NewPortal() (*Portal, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Portal{conn: conn}, nil
}

func (p *Portal) Close() error {
	return p.conn.Close()
}

// RequestAutostart asks the Background portal to enable or disable launching
// command at login. The user may be shown a dialog; ctx bounds the wait.
func (p *Portal) RequestAutostart(ctx context.Context, enabled bool, command []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logger.WithComponent("portal")
	p.seq++
	token := fmt.Sprintf("pulsecore%d_%d", os.Getpid(), p.seq)
	options := map[string]dbus.Variant{
		"handle_token":     dbus.MakeVariant(token),
		"reason":           dbus.MakeVariant("Start PulseCore when you log in"),
		"autostart":        dbus.MakeVariant(enabled),
		"dbus-activatable": dbus.MakeVariant(false),
	}
	if len(command) > 0 {
		options["commandline"] = dbus.MakeVariant(command)
	}

	// Subscribe before calling so the response cannot be missed.
	responseChan := make(chan *dbus.Signal, 10)
	matchRule := fmt.Sprintf("type='signal',interface='%s',member='Response'", requestIface)
	if err := p.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		log.Warn().Err(err).Msg("Failed to add match rule")
	}
	p.conn.Signal(responseChan)
	defer p.conn.RemoveSignal(responseChan)

	var requestPath dbus.ObjectPath
	obj := p.conn.Object(portalService, portalPath)
	if err := obj.CallWithContext(ctx, backgroundIface+".RequestBackground", 0, "", options).Store(&requestPath); err != nil {
		return fmt.Errorf("RequestBackground call failed: %w", err)
	}
	log.Debug().Str("request_path", string(requestPath)).Msg("Waiting for RequestBackground response")

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for portal response: %w", ctx.Err())
		case sig := <-responseChan:
			if sig.Path != requestPath || sig.Name != requestIface+".Response" {
				continue
			}
			return parseBackgroundResponse(sig.Body, enabled)
		}
	}
}

// parseBackgroundResponse checks that the portal granted what was asked.
func parseBackgroundResponse(body []any, enabled bool) error {
	if len(body) < 2 {
		return errors.New("portal: invalid response")
	}
	code, ok := body[0].(uint32)
	if !ok {
		return fmt.Errorf("portal: unexpected response code type %T", body[0])
	}
	if code != 0 {
		return fmt.Errorf("portal request denied (code %d)", code)
	}
	results, _ := body[1].(map[string]dbus.Variant)
	if v, ok := results["autostart"]; ok {
		if got, ok := v.Value().(bool); ok && got != enabled {
			return fmt.Errorf("portal: autostart is %v, wanted %v", got, enabled)
		}
	}
	return nil
}

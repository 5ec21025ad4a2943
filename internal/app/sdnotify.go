package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "adminpanel/pkg/logx"
)

// sdNotify reports service state to systemd. Outside a notify unit it is a no-op.
var sdNotify = func(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

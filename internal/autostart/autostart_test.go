package autostart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDesktopExecQuoting(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"plain", []string{"/usr/bin/easypass", "run"}, "/usr/bin/easypass run"},
		{"space", []string{"/opt/my apps/easypass", "run"}, `"/opt/my apps/easypass" run`},
		{"field code", []string{"/opt/100%/easypass"}, "/opt/100%%/easypass"},
		{"dollar", []string{"/opt/$x/easypass"}, `"/opt/\\$x/easypass"`},
		{"empty", []string{"/bin/easypass", ""}, `/bin/easypass ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, desktopExec(tt.argv))
		})
	}
}

func TestDesktopEntry(t *testing.T) {
	entry := desktopEntry([]string{"/usr/bin/easypass", "run"})

	assert.True(t, strings.HasPrefix(entry, "[Desktop Entry]\n"))
	assert.Contains(t, entry, "Type=Application\n")
	assert.Contains(t, entry, "Exec=/usr/bin/easypass run\n")
	assert.Contains(t, entry, "X-GNOME-Autostart-enabled=true\n")
}

func TestLaunchAgentEscapesArguments(t *testing.T) {
	plist := launchAgent([]string{"/Users/a&b/easypass", "run"})

	assert.Contains(t, plist, "<string>"+launchdLabel+"</string>")
	assert.Contains(t, plist, "<string>/Users/a&amp;b/easypass</string>")
	assert.Contains(t, plist, "<string>run</string>")
	assert.Contains(t, plist, "<key>RunAtLoad</key>\n\t<true/>")
	assert.NotContains(t, plist, "a&b")
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented starting point written by
// `config init`. It is a template rather than a marshaled struct so
// the comments survive.
const sampleConfig = `# mattermost-dl configuration
version: "1"

connection:
  hostname: https://mattermost.example.com
  username: your.username
  # Either a password or a personal access token. Both can also come
  # from the MATTERMOST_PASSWORD / MATTERMOST_TOKEN environment
  # variables so this file can stay free of secrets.
  # password: ...
  # token: ...

output:
  directory: .
  # humanFriendlyPosts: true

# throttling:
#   loopDelay: 200        # milliseconds between paginated requests

# Options inherited by every channel unless overridden per kind, per
# team or per channel.
defaultChannelOptions:
  downloadFromOldest: true
  # maximumPostCount: -1  # -1 = unlimited, 0 = metadata only
  # sessionPostLimit: -1
  # onExistingCompatible: reuse      # backup | delete | reuse | skip
  # onExistingIncompatible: backup   # backup | delete | skip
  # attachments:
  #   download: true
  #   maxSize: 10Mi       # bytes or a unit suffix, 0 = no limit
  #   allowedMimeTypes: [image/png, image/jpeg, application/pdf]
  # emojis:
  #   download: true
  #   metadata: true
  # avatars:
  #   download: true

# downloadTeamChannels: true
# teams:
#   - team: {name: My Team}
#     publicChannels:
#       - name: Town Square
#         maximumPostCount: 1000

# downloadUserChannels: true
# users:
#   - name: other.user

# downloadGroupChannels: true
# groups:
#   - group:
#       - {name: alice}
#       - {name: bob}

# downloadEmojis: true

# report:
#   progressInterval: 500
#   interactiveRecovery: true
`

// WriteSample writes the commented sample configuration to path,
// refusing to clobber an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrConfiguration, path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	// 0600: the file may hold credentials.
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

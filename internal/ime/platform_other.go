//go:build !linux

package ime

// unsupportedPlatform is returned where no input framework is integrated.
// The terminal, websocket and pipe hosts still work there.
type unsupportedPlatform struct{}

// NewPlatform returns the platform integration for this OS.
func NewPlatform(PlatformConfig) Platform {
	return unsupportedPlatform{}
}

func (unsupportedPlatform) Name() string      { return "unsupported" }
func (unsupportedPlatform) Available() bool   { return false }
func (unsupportedPlatform) IsInstalled() bool { return false }
func (unsupportedPlatform) IsActive() bool    { return false }
func (unsupportedPlatform) Install() error    { return ErrUnsupportedPlatform }
func (unsupportedPlatform) Uninstall() error  { return ErrUnsupportedPlatform }
func (unsupportedPlatform) Activate() error   { return ErrUnsupportedPlatform }

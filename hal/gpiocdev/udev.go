package gpiocdev

import (
	"fmt"

	"github.com/jochenvg/go-udev"
)

// DiscoverChip finds the first gpiochip character device on the system via
// udev, for deployments that don't want to hard-code a chip name in
// config.Config.Line.Chip (e.g. a SoC whose gpiochip numbering is
// board-revision-dependent).
func DiscoverChip() (string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("gpio"); err != nil {
		return "", fmt.Errorf("gpiocdev: udev match: %w", err)
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return "", fmt.Errorf("gpiocdev: udev match: %w", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return "", fmt.Errorf("gpiocdev: udev enumerate: %w", err)
	}
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		return node, nil
	}
	return "", fmt.Errorf("gpiocdev: no gpiochip device found via udev")
}

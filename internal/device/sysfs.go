package device

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"glint/internal/capture"
)

const sysVideoClass = "/sys/class/video4linux"

// SysfsSource lists video4linux capture devices from sysfs.
type SysfsSource struct {
	classDir string
	devRoot  string
	titler   cases.Caser
}

// NewSysfsSource constructs a source reading the standard sysfs tree.
func NewSysfsSource() *SysfsSource {
	return &SysfsSource{
		classDir: sysVideoClass,
		devRoot:  "/dev",
		titler:   cases.Title(language.English),
	}
}

// Devices enumerates attached capture devices. Labels are left empty
// when the caller cannot read the device, mirroring the blank labels a
// platform reports before access is granted.
func (s *SysfsSource) Devices(ctx context.Context) ([]Descriptor, error) {
	entries, err := os.ReadDir(s.classDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var devices []Descriptor
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		node := filepath.Join(s.devRoot, name)
		if _, err := os.Stat(node); err != nil {
			continue
		}

		label := s.readLabel(name)
		if unix.Access(node, unix.R_OK) != nil {
			// Unreadable device: report it, but without metadata.
			label = ""
		}

		devices = append(devices, Descriptor{
			ID:     node,
			Label:  label,
			Facing: facingFromLabel(label),
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (s *SysfsSource) readLabel(entry string) string {
	raw, err := os.ReadFile(filepath.Join(s.classDir, entry, "name"))
	if err != nil {
		return ""
	}
	label := strings.TrimSpace(string(raw))
	if label == "" {
		return ""
	}
	if label == strings.ToLower(label) {
		// Kernel drivers often report all-lowercase card names.
		label = s.titler.String(label)
	}
	return label
}

// facingFromLabel applies the common naming conventions of laptop and
// phone-class cameras. Anything else is unknown.
func facingFromLabel(label string) capture.Facing {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "front"), strings.Contains(lower, "user"):
		return capture.FacingUser
	case strings.Contains(lower, "rear"), strings.Contains(lower, "back"), strings.Contains(lower, "world"):
		return capture.FacingEnvironment
	default:
		return capture.FacingUnknown
	}
}

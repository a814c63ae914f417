package zbar

import (
	"errors"
	"testing"

	"glint/internal/capture"
	"glint/internal/scanerr"
	"glint/internal/session"
)

func TestParseSymbol(t *testing.T) {
	cases := []struct {
		line       string
		wantFormat string
		wantText   string
		wantOK     bool
	}{
		{"QR-Code:https://example.com", "QR_CODE", "https://example.com", true},
		{"QR-Code:WIFI:T:WPA;S:TestNet;P:secret;;", "QR_CODE", "WIFI:T:WPA;S:TestNet;P:secret;;", true},
		{"EAN-13:4006381333931", "EAN_13", "4006381333931", true},
		{"I2/5:123456", "ITF", "123456", true},
		{"CODE-128:ABC-123", "CODE_128", "ABC-123", true},
		{"", "", "", false},
		{"noise without separator", "", "", false},
		{":payload-without-symbology", "", "", false},
	}
	for _, tc := range cases {
		format, text, ok := parseSymbol(tc.line)
		if ok != tc.wantOK || format != tc.wantFormat || text != tc.wantText {
			t.Fatalf("parseSymbol(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.line, format, text, ok, tc.wantFormat, tc.wantText, tc.wantOK)
		}
	}
}

func TestBuildArgsRestrictsSymbologies(t *testing.T) {
	args, err := buildArgs(
		capture.Constraints{DeviceID: "/dev/video2"},
		session.ScanConfig{Formats: []string{"QR_CODE", "ean_13"}},
	)
	if err != nil {
		t.Fatalf("buildArgs: %v", err)
	}
	want := []string{"--nodisplay", "-Sdisable", "-Sqrcode.enable", "-Sean13.enable", "/dev/video2"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestBuildArgsRejectsUnknownFormat(t *testing.T) {
	_, err := buildArgs(capture.Constraints{}, session.ScanConfig{Formats: []string{"MAXICODE"}})
	if scanerr.KindOf(err) != scanerr.KindUnsupportedFormat {
		t.Fatalf("kind = %q, want unsupported_format", scanerr.KindOf(err))
	}
}

func TestClassifyExit(t *testing.T) {
	exitErr := errors.New("exit status 1")
	cases := []struct {
		name   string
		stderr []string
		want   scanerr.Kind
	}{
		{"busy device", []string{"ERROR: /dev/video0: Device or resource busy"}, scanerr.KindDeviceInUse},
		{"missing node", []string{"ERROR: opening /dev/video9: No such file or directory"}, scanerr.KindNoDevices},
		{"denied", []string{"ERROR: /dev/video0: Permission denied"}, scanerr.KindPermissionDenied},
		{"unmapped", []string{"something odd happened"}, scanerr.KindStartFailed},
		{"silent exit", nil, scanerr.KindStartFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyExit("/dev/video0", exitErr, tc.stderr)
			if scanerr.KindOf(err) != tc.want {
				t.Fatalf("kind = %q, want %q", scanerr.KindOf(err), tc.want)
			}
			if !errors.Is(err, exitErr) {
				t.Fatal("underlying exit error must be preserved")
			}
		})
	}
}

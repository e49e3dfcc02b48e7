package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

// Populated via -ldflags="-X ...".
var GitRevisionId = "dev"

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("surfacerelayd", flag.ContinueOnError)
	fs.StringP("config", "c", "", "YAML configuration file")
	fs.IntP("width", "x", 1920, "Frame width")
	fs.IntP("height", "y", 1080, "Frame height")
	fs.Uint32("format", 0x3231564e, "Pixel format code")
	fs.IntP("buffers", "n", 6, "Camera queue depth")
	fs.IntP("fps", "f", 30, "Synthetic camera frame rate")
	fs.Duration("encode-latency", 0, "Time the synthetic encoder holds each buffer")
	fs.Duration("fence-timeout", 0, "Upper bound on waiting for acquire fences")
	fs.StringP("listen", "l", ":8000", "HTTP address for /imu and /metrics")
	fs.String("log-level", "", "Logging directives, e.g. info,relay=debug")
	fs.BoolP("help", "h", false, "Print usage information and exit")
	fs.BoolP("version", "v", false, "Print version information and exit")
	return fs
}

const helpString = `Zero-copy camera to encoder buffer relay with IMU sideband streaming

Usage: surfacerelayd [OPTION]...

Source:
  -x, --width=NUM           Frame width (default: 1920)
  -y, --height=NUM          Frame height (default: 1080)
      --format=NUM          Pixel format code (default: 0x3231564e, NV12)
  -n, --buffers=NUM         Camera queue depth (default: 6)
  -f, --fps=NUM             Synthetic camera frame rate (default: 30)

Relay:
      --encode-latency=DUR  Time the synthetic encoder holds a buffer (default: 20ms)
      --fence-timeout=DUR   Upper bound on acquire fence waits (default: 3s)

Service:
  -c, --config=FILE         YAML configuration file
  -l, --listen=ADDR         HTTP address for /imu and /metrics (default: :8000)
      --log-level=LIST      Logging directives, e.g. info,relay=debug

Miscellaneous:
  -h, --help                Prints this help message and exits
  -v, --version             Prints version information and exits`

func help() {
	c := color.New(color.FgCyan, color.Bold)
	y := color.New(color.FgYellow)

	c.Printf("surface")
	y.Println("relay")
	fmt.Println()
	fmt.Println(helpString)
}

func version() {
	fmt.Println("surfacerelayd", GitRevisionId)
}

//go:build camera

package cmd

// Registers the V4L2/AVFoundation/DirectShow camera driver with mediadevices
import _ "github.com/pion/mediadevices/pkg/driver/camera"

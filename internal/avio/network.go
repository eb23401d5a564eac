package avio

// #include <libavformat/avformat.h>
// #include <libavdevice/avdevice.h>
import "C"

// Init performs the one-time process-wide setup the demux/decode library
// needs. Safe to call more than once.
func Init() error {
	C.avdevice_register_all()
	if code := C.avformat_network_init(); code < 0 {
		return errf("0x%x: couldn't initialize the demux/decode library", int(code))
	}
	return nil
}

// Shutdown releases whatever process-wide state Init acquired.
func Shutdown() error {
	if code := C.avformat_network_deinit(); code < 0 {
		return errf("0x%x: couldn't shut down the demux/decode library", int(code))
	}
	return nil
}

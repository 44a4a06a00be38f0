package rtc

import "github.com/pion/rtcp"

// wantsKeyFrame reports whether a batch of RTCP feedback asks the sender for
// a fresh key frame.
func wantsKeyFrame(pkts []rtcp.Packet) bool {
	for _, p := range pkts {
		switch p.(type) {
		case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
			return true
		}
	}
	return false
}

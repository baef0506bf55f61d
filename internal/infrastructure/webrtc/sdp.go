package webrtc

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"streamcast/internal/core/domain"

	"github.com/pion/randutil"
)

// SDP text here is structurally valid but carries placeholder security
// material: the fingerprint and ICE credentials are generated, not
// negotiated. A media engine replacing this builder owns the real values.

const runesAlphaNum = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var ssrcRand = randutil.NewMathRandomGenerator()

func buildOfferSDP(peerID domain.PeerID, tracks []domain.MediaTrack) string {
	var b strings.Builder

	writeSessionHeader(&b)

	b.WriteString("a=group:BUNDLE 0")
	for i := range tracks {
		fmt.Fprintf(&b, " %d", i+1)
	}
	b.WriteString("\r\n")
	b.WriteString("a=msid-semantic: WMS *\r\n")

	writeApplicationSection(&b, "actpass")

	for _, track := range tracks {
		switch track.Kind {
		case "audio":
			writeAudioSection(&b, peerID, track)
		case "video":
			writeVideoSection(&b, peerID, track)
		}
	}

	return b.String()
}

func buildAnswerSDP(peerID domain.PeerID) string {
	var b strings.Builder

	writeSessionHeader(&b)
	b.WriteString("a=group:BUNDLE 0\r\n")
	b.WriteString("a=msid-semantic: WMS *\r\n")
	writeApplicationSection(&b, "active")

	return b.String()
}

func writeSessionHeader(b *strings.Builder) {
	b.WriteString("v=0\r\n")
	fmt.Fprintf(b, "o=- %d 2 IN IP4 127.0.0.1\r\n", time.Now().Unix())
	b.WriteString("s=-\r\n")
	b.WriteString("t=0 0\r\n")
}

func writeApplicationSection(b *strings.Builder, setup string) {
	b.WriteString("m=application 9 UDP/TLS/RTP/SAVPF 127\r\n")
	b.WriteString("c=IN IP4 0.0.0.0\r\n")
	writeTransportAttributes(b, setup)
	b.WriteString("a=mid:0\r\n")
	b.WriteString("a=sendrecv\r\n")
}

func writeAudioSection(b *strings.Builder, peerID domain.PeerID, track domain.MediaTrack) {
	b.WriteString("m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n")
	b.WriteString("c=IN IP4 0.0.0.0\r\n")
	b.WriteString("a=rtcp:9 IN IP4 0.0.0.0\r\n")
	writeTransportAttributes(b, "actpass")
	b.WriteString("a=mid:audio\r\n")
	b.WriteString("a=sendrecv\r\n")
	b.WriteString("a=rtcp-mux\r\n")
	b.WriteString("a=rtpmap:111 opus/48000/2\r\n")
	b.WriteString("a=fmtp:111 minptime=10;useinbandfec=1\r\n")
	fmt.Fprintf(b, "a=ssrc:%d cname:%s\r\n", generateSSRC(), peerID)
	fmt.Fprintf(b, "a=ssrc:%d msid:%s audio\r\n", generateSSRC(), track.ID)
}

func writeVideoSection(b *strings.Builder, peerID domain.PeerID, track domain.MediaTrack) {
	b.WriteString("m=video 9 UDP/TLS/RTP/SAVPF 96\r\n")
	b.WriteString("c=IN IP4 0.0.0.0\r\n")
	b.WriteString("a=rtcp:9 IN IP4 0.0.0.0\r\n")
	writeTransportAttributes(b, "actpass")
	b.WriteString("a=mid:video\r\n")
	b.WriteString("a=sendrecv\r\n")
	b.WriteString("a=rtcp-mux\r\n")
	b.WriteString("a=rtcp-rsize\r\n")
	b.WriteString("a=rtpmap:96 VP8/90000\r\n")
	b.WriteString("a=rtcp-fb:96 goog-remb\r\n")
	b.WriteString("a=rtcp-fb:96 transport-cc\r\n")
	b.WriteString("a=rtcp-fb:96 ccm fir\r\n")
	b.WriteString("a=rtcp-fb:96 nack\r\n")
	b.WriteString("a=rtcp-fb:96 nack pli\r\n")
	fmt.Fprintf(b, "a=ssrc:%d cname:%s\r\n", generateSSRC(), peerID)
	fmt.Fprintf(b, "a=ssrc:%d msid:%s video\r\n", generateSSRC(), track.ID)
}

func writeTransportAttributes(b *strings.Builder, setup string) {
	fmt.Fprintf(b, "a=ice-ufrag:%s\r\n", randomString(16))
	fmt.Fprintf(b, "a=ice-pwd:%s\r\n", randomString(24))
	b.WriteString("a=ice-options:trickle\r\n")
	fmt.Fprintf(b, "a=fingerprint:sha-256 %s\r\n", generateFingerprint())
	fmt.Fprintf(b, "a=setup:%s\r\n", setup)
}

func randomString(n int) string {
	s, err := randutil.GenerateCryptoRandomString(n, runesAlphaNum)
	if err != nil {
		return ssrcRand.GenerateString(n, runesAlphaNum)
	}
	return s
}

func generateFingerprint() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// math/rand fallback keeps the placeholder usable
		for i := range buf {
			buf[i] = byte(ssrcRand.Intn(256))
		}
	}

	parts := make([]string, len(buf))
	for i, v := range buf {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}

func generateSSRC() uint32 {
	return uint32(1000000 + ssrcRand.Intn(9000000))
}

package nesteddemux

import (
	"testing"

	"github.com/go-dash/dashdemux/internal/dash"
)

func TestMPEGTSStreamType_Video(t *testing.T) {
	rep := &dash.Representation{MediaType: dash.MediaTypeVideo, Codecs: "avc1.64001f"}
	st, ok := mpegtsStreamType(rep)
	if !ok || st != 0x1B {
		t.Errorf("got st=%#x ok=%v, want 0x1B true", st, ok)
	}
}

func TestMPEGTSStreamType_Audio(t *testing.T) {
	rep := &dash.Representation{MediaType: dash.MediaTypeAudio, Codecs: "mp4a.40.2"}
	st, ok := mpegtsStreamType(rep)
	if !ok || st != 0x0F {
		t.Errorf("got st=%#x ok=%v, want 0x0F true", st, ok)
	}
}

func TestMPEGTSStreamType_UnsupportedCodec(t *testing.T) {
	rep := &dash.Representation{MediaType: dash.MediaTypeVideo, Codecs: "vp09.00.10.08"}
	if _, ok := mpegtsStreamType(rep); ok {
		t.Error("expected VP9 (fMP4-only) to be rejected for MPEG-TS stream typing")
	}
}

func TestMPEGTSStreamType_Subtitle(t *testing.T) {
	rep := &dash.Representation{MediaType: dash.MediaTypeSubtitle, Codecs: "stpp"}
	if _, ok := mpegtsStreamType(rep); ok {
		t.Error("expected subtitle media type to have no MPEG-TS stream type")
	}
}

func TestContainsIDR_H264(t *testing.T) {
	// start code + NAL header with type 5 (IDR)
	payload := []byte{0, 0, 1, 0x65, 0xAA, 0xBB}
	if !containsIDR(payload) {
		t.Error("expected an H.264 NAL type 5 to be detected as IDR")
	}
}

func TestContainsIDR_H264NonIDR(t *testing.T) {
	// NAL type 1 (non-IDR slice)
	payload := []byte{0, 0, 1, 0x61, 0xAA, 0xBB}
	if containsIDR(payload) {
		t.Error("expected an H.264 NAL type 1 to not be detected as IDR")
	}
}

func TestContainsIDR_NoStartCode(t *testing.T) {
	if containsIDR([]byte{1, 2, 3, 4}) {
		t.Error("expected payload with no Annex-B start code to report false")
	}
}

func TestContainsIDR_H265IDR(t *testing.T) {
	// NAL type 19 (IDR_W_RADL) encoded in the H.265 NAL header's bits 1-6.
	nalHeader := byte(19 << 1)
	payload := []byte{0, 0, 1, nalHeader, 0, 0xAA}
	if !containsIDR(payload) {
		t.Error("expected an H.265 IDR NAL type to be detected")
	}
}

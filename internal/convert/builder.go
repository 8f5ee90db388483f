package convert

import (
	"fmt"
	"strconv"

	"github.com/galeed/Conversor/internal/domain"
)

const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
	FormatMP3  = "mp3"

	// InputName is the fixed logical name an input file is staged
	// under inside the engine workspace.
	InputName = "input"

	mp3Bitrate = "320k"
)

// Invocation is one fully assembled engine command: the ordered token
// list plus the output filename it declares. It is fully determined by
// the conversion options and the staged input name.
type Invocation struct {
	Args       []string
	OutputName string
}

// Build maps conversion options to an engine invocation. It is pure and
// total: unrecognized option values never fail, they simply omit the
// corresponding directive so the engine falls back to its own default.
func Build(opts domain.ConversionOptions, inputName string) Invocation {
	args := []string{"-i", inputName}

	if opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}

	switch opts.TargetFormat {
	case FormatWAV:
		if codec, ok := pcmCodec(opts.BitDepth); ok {
			args = append(args, "-c:a", codec)
		}
	case FormatFLAC:
		// The native FLAC encoder selects the bit depth itself. The
		// 24/32-bit selections stay valid UI states but are not force
		// applied here.
	case FormatMP3:
		// Lossy output has no bit depth concept.
		args = append(args, "-b:a", mp3Bitrate)
	}

	outputName := "output." + opts.TargetFormat
	args = append(args, outputName)

	return Invocation{Args: args, OutputName: outputName}
}

// pcmCodec maps a bit depth to the little-endian PCM codec forced for
// WAV output. Unsupported depths report false so the engine default
// applies.
func pcmCodec(bitDepth int) (string, bool) {
	switch bitDepth {
	case 16:
		return "pcm_s16le", true
	case 24:
		return "pcm_s24le", true
	case 32:
		return "pcm_f32le", true
	default:
		return "", false
	}
}

// DownloadName builds the suggested filename for a finished
// conversion. The bit depth is embedded for every format, mp3
// included.
func DownloadName(opts domain.ConversionOptions) string {
	return fmt.Sprintf("convertido_%dHz_%dbit.%s", opts.SampleRate, opts.BitDepth, opts.TargetFormat)
}

// ContentType returns the MIME type advertised for a finished
// conversion artifact.
func ContentType(opts domain.ConversionOptions) string {
	return "audio/" + opts.TargetFormat
}

package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// StreamInfo is what ffprobe reports about a stream: program identity and the first
// video stream's geometry.
type StreamInfo struct {
	URL             string `json:"url"`
	ServiceName     string `json:"service_name,omitempty"`
	ServiceProvider string `json:"service_provider,omitempty"`
	VideoCodec      string `json:"video_codec,omitempty"`
	AudioCodec      string `json:"audio_codec,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Level           string `json:"level,omitempty"`
	Error           string `json:"error,omitempty"`
}

type ffprobeOutput struct {
	Programs []struct {
		Tags map[string]string `json:"tags"`
	} `json:"programs"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Info runs ffprobe with JSON output and summarises the result.
func (r *Runner) Info(ctx context.Context, streamURL string) (StreamInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_programs",
		streamURL,
	}
	stdout, _, err := r.run(ctx, "ffprobe", r.ffprobe(), args, orDefault(r.ProbeTimeout, 5*time.Second))
	if err != nil {
		return StreamInfo{URL: streamURL, Error: err.Error()}, err
	}
	info, err := ParseInfo(stdout)
	info.URL = streamURL
	if err != nil {
		info.Error = err.Error()
	}
	return info, err
}

// ParseInfo decodes ffprobe -print_format json output.
func ParseInfo(data []byte) (StreamInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return StreamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var info StreamInfo
	if len(out.Programs) > 0 {
		info.ServiceName = out.Programs[0].Tags["service_name"]
		info.ServiceProvider = out.Programs[0].Tags["service_provider"]
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width, info.Height = s.Width, s.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}
	info.Level = ResolutionLevel(info.Width, info.Height)
	return info, nil
}

// ResolutionLevel buckets a frame size into SD / HD / FHD / UHD. Unknown sizes return "".
func ResolutionLevel(width, height int) string {
	switch {
	case width <= 0 || height <= 0:
		return ""
	case width <= 720 && height <= 480:
		return "SD"
	case width <= 1280 && height <= 720:
		return "HD"
	case width <= 1920 && height <= 1080:
		return "FHD"
	default:
		return "UHD"
	}
}

package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// Default encoding settings
const (
	DefaultVideoCodec = "libx264"
	DefaultPreset     = "veryfast"
)

// Container is the muxer used for streamed output.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerWebM Container = "webm"
)

// EncodeOptions configures a streaming encode fed with raw RGBA frames.
type EncodeOptions struct {
	Width     int
	Height    int
	FPS       int
	Codec     string
	Preset    string
	Bitrate   int64 // bits per second
	Container Container

	ProgressFunc ProgressFunc
}

// DecodeOptions configures a raw RGBA frame reader over a video file.
// Frames are scaled to cover Width x Height and center-cropped to it.
type DecodeOptions struct {
	Input    string
	Width    int
	Height   int
	FPS      int
	Duration time.Duration // 0 reads to the end of the stream
}

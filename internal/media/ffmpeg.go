// Package media wraps the ffmpeg/ffprobe subprocess toolchain for C5: audio
// extraction, two-pass loudness normalization, optional video compression,
// and multi-rendition fMP4-HLS encoding with master playlist synthesis.
// The exec.CommandContext + CombinedOutput + post-stat verification pattern
// is grounded on the teacher's internal/platform/localmedia/tools.go.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/video-ingestor/internal/config"
	"github.com/yungbote/video-ingestor/internal/ingesterr"
	"github.com/yungbote/video-ingestor/internal/obs"
)

// Tools is the subprocess-backed media toolchain surface the orchestrator
// depends on.
type Tools interface {
	AssertReady(ctx context.Context) error
	ExtractAudio(ctx context.Context, videoPath, tempDir string) (audioPath string, durationSeconds *int, err error)
	NormalizeAudio(ctx context.Context, videoPath, tempDir string, norm config.AudioNormalizationConfig, comp config.VideoCompressionConfig) (outputPath string, err error)
	EncodeHLS(ctx context.Context, inputPath, outputDir, baseName string, hls config.HLSConfig) (HLSResult, error)
}

// HLSResult describes the artifacts EncodeHLS produced.
type HLSResult struct {
	OutputDir          string
	MasterPlaylistName string
	Renditions         []string
}

type tools struct {
	log            *obs.Logger
	ffmpegPath     string
	ffprobePath    string
	defaultTimeout time.Duration
}

func New(log *obs.Logger) Tools {
	return &tools{
		log:            log.With("service", "media.Tools"),
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		defaultTimeout: 20 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return ingesterr.MediaTool(fmt.Errorf("missing required binary %q in PATH: %w", bin, err))
		}
	}
	_ = ctx
	return nil
}

// ExtractAudio produces a 16kHz mono 16-bit PCM WAV and, non-fatally,
// probes container duration via ffprobe.
func (m *tools) ExtractAudio(ctx context.Context, videoPath, tempDir string) (string, *int, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", nil, ingesterr.MediaTool(fmt.Errorf("mkdir tempDir: %w", err))
	}
	outPath := filepath.Join(tempDir, "audio.wav")

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{
		"-y", "-i", videoPath,
		"-vn", "-ac", "1", "-ar", "16000", "-sample_fmt", "s16",
		"-f", "wav", outPath,
	}
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", nil, ingesterr.MediaTool(fmt.Errorf("ffmpeg extract audio failed: %w; stderr tail: %s", err, tail(out, 2000)))
	}
	if _, statErr := os.Stat(outPath); statErr != nil {
		return "", nil, ingesterr.MediaTool(fmt.Errorf("audio output missing at %s", outPath))
	}

	duration, probeErr := m.probeDuration(ctx, videoPath)
	if probeErr != nil {
		m.log.Warn("duration probe failed, continuing with null duration", "error", probeErr)
		return outPath, nil, nil
	}
	return outPath, duration, nil
}

func (m *tools) probeDuration(ctx context.Context, path string) (*int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error", "-show_entries", "format=duration",
		"-of", "json", path,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w; stderr tail: %s", err, tail(out, 500))
	}
	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	f, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("parse duration value %q: %w", parsed.Format.Duration, err)
	}
	secs := int(math.Round(f))
	return &secs, nil
}

// NormalizeAudio runs two-pass loudnorm (measure, then apply with linear
// offsets), optionally re-encoding video in the same pass. On pass-1
// failure the audio is copied unchanged with a warning, matching §4.5.
func (m *tools) NormalizeAudio(ctx context.Context, videoPath, tempDir string, norm config.AudioNormalizationConfig, comp config.VideoCompressionConfig) (string, error) {
	if !norm.Apply {
		return videoPath, nil
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", ingesterr.MediaTool(fmt.Errorf("mkdir tempDir: %w", err))
	}
	outPath := filepath.Join(tempDir, "normalized.mp4")

	measured, err := m.measureLoudness(ctx, videoPath, norm)
	if err != nil {
		m.log.Warn("loudnorm measurement pass failed, copying audio unchanged", "error", err)
		return m.copyUnchanged(ctx, videoPath, outPath, comp)
	}

	ctx2, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	loudnormFilter := fmt.Sprintf(
		"loudnorm=I=%v:LRA=%v:TP=%v:measured_I=%v:measured_LRA=%v:measured_TP=%v:measured_thresh=%v:offset=%v:linear=true:print_format=summary",
		norm.TargetLUFS, norm.LoudnessRange, norm.TruePeak,
		measured.inputI, measured.inputLRA, measured.inputTP, measured.inputThresh, measured.targetOffset,
	)

	args := []string{"-y", "-i", videoPath, "-af", loudnormFilter}
	args = append(args, videoArgs(comp)...)
	args = append(args, "-c:a", norm.AudioCodec, "-b:a", norm.AudioBitrate, "-movflags", "+faststart", outPath)

	cmd := exec.CommandContext(ctx2, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", ingesterr.MediaTool(fmt.Errorf("ffmpeg normalize pass failed: %w; stderr tail: %s", err, tail(out, 2000)))
	}
	if _, statErr := os.Stat(outPath); statErr != nil {
		return "", ingesterr.MediaTool(fmt.Errorf("normalized output missing at %s", outPath))
	}
	return outPath, nil
}

func (m *tools) copyUnchanged(ctx context.Context, videoPath, outPath string, comp config.VideoCompressionConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	args := []string{"-y", "-i", videoPath}
	if comp.Apply {
		args = append(args, videoArgs(comp)...)
	} else {
		args = append(args, "-c:v", "copy")
	}
	args = append(args, "-c:a", "copy", "-movflags", "+faststart", outPath)
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", ingesterr.MediaTool(fmt.Errorf("ffmpeg copy-unchanged pass failed: %w; stderr tail: %s", err, tail(out, 2000)))
	}
	return outPath, nil
}

func videoArgs(comp config.VideoCompressionConfig) []string {
	if !comp.Apply {
		return []string{"-c:v", "copy"}
	}
	args := []string{"-c:v", comp.Codec}
	if comp.Preset != "" {
		args = append(args, "-preset", comp.Preset)
	}
	if comp.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(comp.CRF))
	}
	if comp.PixelFormat != "" {
		args = append(args, "-pix_fmt", comp.PixelFormat)
	}
	if comp.MaxBitrate != "" {
		args = append(args, "-maxrate", comp.MaxBitrate)
		if comp.BufSize != "" {
			args = append(args, "-bufsize", comp.BufSize)
		}
	}
	if comp.Tune != "" {
		args = append(args, "-tune", comp.Tune)
	}
	if comp.MaxWidth > 0 || comp.MaxHeight > 0 {
		w, h := comp.MaxWidth, comp.MaxHeight
		if w <= 0 {
			w = -2
		}
		if h <= 0 {
			h = -2
		}
		vf := fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2", w, h)
		args = append(args, "-vf", vf)
	}
	return args
}

type loudnessMeasurement struct {
	inputI, inputLRA, inputTP, inputThresh, targetOffset float64
}

func (m *tools) measureLoudness(ctx context.Context, videoPath string, norm config.AudioNormalizationConfig) (loudnessMeasurement, error) {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	filter := fmt.Sprintf("loudnorm=I=%v:LRA=%v:TP=%v:print_format=json", norm.TargetLUFS, norm.LoudnessRange, norm.TruePeak)
	cmd := exec.CommandContext(ctx, m.ffmpegPath, "-i", videoPath, "-af", filter, "-f", "null", "-")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return loudnessMeasurement{}, fmt.Errorf("measurement pass failed: %w", err)
	}
	jsonStart := strings.LastIndex(string(out), "{")
	jsonEnd := strings.LastIndex(string(out), "}")
	if jsonStart < 0 || jsonEnd < jsonStart {
		return loudnessMeasurement{}, fmt.Errorf("no loudnorm JSON block in ffmpeg output")
	}
	var parsed struct {
		InputI         string `json:"input_i"`
		InputLRA       string `json:"input_lra"`
		InputTP        string `json:"input_tp"`
		InputThresh    string `json:"input_thresh"`
		TargetOffset   string `json:"target_offset"`
	}
	if err := json.Unmarshal(out[jsonStart:jsonEnd+1], &parsed); err != nil {
		return loudnessMeasurement{}, fmt.Errorf("parse loudnorm measurement JSON: %w", err)
	}
	parse := func(s string) float64 { f, _ := strconv.ParseFloat(s, 64); return f }
	return loudnessMeasurement{
		inputI:       parse(parsed.InputI),
		inputLRA:     parse(parsed.InputLRA),
		inputTP:      parse(parsed.InputTP),
		inputThresh:  parse(parsed.InputThresh),
		targetOffset: parse(parsed.TargetOffset),
	}, nil
}

// EncodeHLS generates one fMP4-HLS rendition per configured entry and
// synthesizes a master playlist referencing them by basename.
func (m *tools) EncodeHLS(ctx context.Context, inputPath, outputDir, baseName string, hls config.HLSConfig) (HLSResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return HLSResult{}, ingesterr.MediaTool(fmt.Errorf("mkdir outputDir: %w", err))
	}
	renditions := hls.Renditions
	if len(renditions) == 0 {
		renditions = []config.Rendition{{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 2_500_000, AudioBitrate: 128_000}}
	}

	var renditionFiles []string
	var masterEntries []string

	for _, r := range renditions {
		playlistName := fmt.Sprintf("%s_%s.m3u8", baseName, r.Name)
		segmentPattern := fmt.Sprintf("%s_%s_%%04d.m4s", baseName, r.Name)
		initSegment := fmt.Sprintf("%s_%s_init.mp4", baseName, r.Name)

		if err := m.encodeRendition(ctx, inputPath, outputDir, playlistName, segmentPattern, initSegment, r, hls); err != nil {
			return HLSResult{}, err
		}
		renditionFiles = append(renditionFiles, playlistName)

		bandwidth := r.VideoBitrate + r.AudioBitrate
		entry := fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d", bandwidth)
		if r.Width > 0 && r.Height > 0 {
			entry += fmt.Sprintf(",RESOLUTION=%dx%d", r.Width, r.Height)
		}
		entry += fmt.Sprintf(",NAME=\"%s\"\n%s", r.Name, playlistName)
		masterEntries = append(masterEntries, entry)
	}

	masterName := hls.MasterPlaylistName
	if masterName == "" {
		masterName = "master.m3u8"
	}
	masterPath := filepath.Join(outputDir, masterName)
	master := "#EXTM3U\n#EXT-X-VERSION:7\n" + strings.Join(masterEntries, "\n") + "\n"
	if err := os.WriteFile(masterPath, []byte(master), 0o644); err != nil {
		return HLSResult{}, ingesterr.MediaTool(fmt.Errorf("write master playlist: %w", err))
	}

	return HLSResult{OutputDir: outputDir, MasterPlaylistName: masterName, Renditions: renditionFiles}, nil
}

func (m *tools) encodeRendition(ctx context.Context, inputPath, outputDir, playlistName, segmentPattern, initSegment string, r config.Rendition, hls config.HLSConfig) error {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	segmentSeconds := hls.SegmentDuration
	if segmentSeconds <= 0 {
		segmentSeconds = 4
	}
	keyframeInterval := hls.KeyframeInterval
	if keyframeInterval <= 0 {
		keyframeInterval = 48
	}
	fps := hls.TargetFrameRate
	if fps <= 0 {
		fps = 30
	}

	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2,fps=%d", r.Width, r.Height, fps)

	args := []string{
		"-y", "-i", inputPath,
		"-vf", vf,
		"-c:v", hls.VideoCodec,
		"-g", strconv.Itoa(keyframeInterval), "-keyint_min", strconv.Itoa(keyframeInterval),
		"-sc_threshold", "0",
		"-b:v", strconv.Itoa(r.VideoBitrate),
		"-c:a", hls.AudioCodec, "-b:a", strconv.Itoa(r.AudioBitrate),
	}
	if hls.Preset != "" {
		args = append(args, "-preset", hls.Preset)
	}
	playlistType := hls.PlaylistType
	if playlistType == "" {
		playlistType = "vod"
	}
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", playlistType,
		"-hls_segment_type", "fmp4",
		"-hls_fmp4_init_filename", initSegment,
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outputDir, segmentPattern),
		filepath.Join(outputDir, playlistName),
	)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ingesterr.MediaTool(fmt.Errorf("ffmpeg HLS rendition %s failed: %w; stderr tail: %s", r.Name, err, tail(out, 2000)))
	}

	// The playlist's init-segment reference must be a basename-only path.
	playlistPath := filepath.Join(outputDir, playlistName)
	data, err := os.ReadFile(playlistPath)
	if err != nil {
		return ingesterr.MediaTool(fmt.Errorf("read generated playlist %s: %w", playlistPath, err))
	}
	rewritten := strings.ReplaceAll(string(data), filepath.ToSlash(filepath.Join(outputDir, initSegment)), initSegment)
	if err := os.WriteFile(playlistPath, []byte(rewritten), 0o644); err != nil {
		return ingesterr.MediaTool(fmt.Errorf("rewrite playlist init reference: %w", err))
	}
	return nil
}

func tail(b []byte, n int) string {
	s := string(b)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

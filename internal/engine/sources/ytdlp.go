package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/anatolykoptev/go-kit/strutil"
	"github.com/anatolykoptev/go_tunes/internal/engine"
)

const (
	stderrTailBytes      = 2048
	relatedFallbackLimit = 5
)

// YtDlp wraps the yt-dlp binary. One process per operation; nothing is retried.
type YtDlp struct {
	Path string
	// NextURL is the Innertube /next endpoint consulted when yt-dlp metadata
	// has no related videos. Empty disables the fallback.
	NextURL string
}

func NewYtDlp(path string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{Path: path, NextURL: ytNextURL}
}

// LookPath reports whether the configured binary can be found.
func (y *YtDlp) LookPath() error {
	_, err := exec.LookPath(y.Path)
	return err
}

func (y *YtDlp) command(ctx context.Context, args ...string) *exec.Cmd {
	engine.IncrYtDlpInvocations()
	slog.Debug("ytdlp: exec", slog.String("args", strings.Join(args, " ")))
	return exec.CommandContext(ctx, y.Path, args...)
}

// VideoInfo is the subset of `yt-dlp --dump-json` output used here.
type VideoInfo struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	WebpageURL    string         `json:"webpage_url"`
	Channel       string         `json:"channel"`
	Duration      float64        `json:"duration"`
	RelatedVideos []RelatedVideo `json:"related_videos"`
}

type RelatedVideo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FirstRelated returns the first related video that carries an id or a usable URL.
func (v *VideoInfo) FirstRelated() (engine.Video, bool) {
	if v == nil {
		return engine.Video{}, false
	}
	for _, rv := range v.RelatedVideos {
		id := rv.ID
		if id == "" {
			id = ExtractVideoID(rv.URL)
		}
		if id == "" {
			continue
		}
		return engine.NewVideo(id, rv.Title, ""), true
	}
	return engine.Video{}, false
}

// Metadata runs `yt-dlp --dump-json` for a single video.
func (y *YtDlp) Metadata(ctx context.Context, videoURL string) (*VideoInfo, error) {
	cmd := y.command(ctx, "--dump-json", "--no-warnings", "--no-playlist", "--skip-download", videoURL)
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, exitError("metadata", err, stderr)
	}
	info, err := parseVideoInfo(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	if len(info.RelatedVideos) == 0 && y.NextURL != "" {
		id := info.ID
		if id == "" {
			id = ExtractVideoID(videoURL)
		}
		if id != "" {
			related, err := fetchNextRelated(ctx, y.NextURL, id, relatedFallbackLimit)
			if err != nil {
				slog.Debug("ytdlp: related fallback failed", slog.String("id", id), slog.Any("error", err))
			} else {
				info.RelatedVideos = related
			}
		}
	}
	return info, nil
}

func parseVideoInfo(data []byte) (*VideoInfo, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("ytdlp metadata: empty output")
	}
	var info VideoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("ytdlp metadata: decode: %w", err)
	}
	return &info, nil
}

// Search runs a flat `ytsearchN:` query; each output line is one JSON entry.
func (y *YtDlp) Search(ctx context.Context, query string, limit int) ([]engine.Video, error) {
	if limit <= 0 {
		limit = 5
	}
	target := "ytsearch" + strconv.Itoa(limit) + ":" + query
	cmd := y.command(ctx, target, "--dump-json", "--flat-playlist", "--no-warnings")
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, exitError("search", err, stderr)
	}
	return parseSearchLines(stdout.Bytes(), limit), nil
}

type flatEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	Uploader string `json:"uploader"`
}

func parseSearchLines(out []byte, limit int) []engine.Video {
	var videos []engine.Video
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() && len(videos) < limit {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e flatEntry
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Debug("ytdlp: skip unparsable search line", slog.Any("error", err))
			continue
		}
		if e.ID == "" {
			continue
		}
		channel := e.Channel
		if channel == "" {
			channel = e.Uploader
		}
		videos = append(videos, engine.NewVideo(e.ID, e.Title, channel))
	}
	return videos
}

// Stream starts `yt-dlp -f bestaudio -o -` and returns its stdout. The process
// lives as long as ctx; Close kills it if the output was not read to the end.
// Reading to EOF reports the process exit status as the final error.
func (y *YtDlp) Stream(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	cmd := y.command(ctx, "-f", "bestaudio", "-o", "-", "--no-warnings", "--no-playlist", "--quiet", videoURL)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ytdlp stream: %w", err)
	}
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ytdlp stream: start: %w", err)
	}
	return &audioStream{cmd: cmd, out: stdout, stderr: stderr}, nil
}

type audioStream struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr *tailBuffer

	eof      bool
	waitOnce sync.Once
	waitErr  error
}

func (s *audioStream) Read(p []byte) (int, error) {
	n, err := s.out.Read(p)
	if err == io.EOF {
		s.eof = true
		if werr := s.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (s *audioStream) Close() error {
	if !s.eof && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.wait()
	if !s.eof {
		// Killed on purpose; the exit status carries no information.
		return nil
	}
	return err
}

func (s *audioStream) wait() error {
	s.waitOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			s.waitErr = exitError("stream", err, s.stderr)
		}
	})
	return s.waitErr
}

func exitError(op string, err error, stderr *tailBuffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("ytdlp %s: %w", op, err)
	}
	return fmt.Errorf("ytdlp %s: %w: %s", op, err, strutil.TruncateAtWord(msg, 300))
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

package livestream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrOffline is returned by HTTPPlaylistFetcher.LatestSegment when the
// playlist responds 404: the stream is not currently being served, which
// spec.md §4.6 classifies as "no new segment", not a fetch error.
var ErrOffline = errors.New("livestream playlist offline")

const segmentFetchTimeout = 15 * time.Second

// HTTPPlaylistFetcher fetches and parses HLS (m3u8) playlists and their
// referenced segments over plain HTTP.
type HTTPPlaylistFetcher struct {
	CDNBaseURL string
	Client     *http.Client
}

func NewHTTPPlaylistFetcher(cdnBaseURL string) *HTTPPlaylistFetcher {
	return &HTTPPlaylistFetcher{CDNBaseURL: cdnBaseURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

// LatestSegment fetches {cdn}/live/{stream_id}.m3u8 and returns the last
// non-comment, non-empty line, which in an HLS media playlist is the most
// recently published segment URI.
func (f *HTTPPlaylistFetcher) LatestSegment(ctx context.Context, streamID string) (string, error) {
	url := fmt.Sprintf("%s/live/%s.m3u8", strings.TrimRight(f.CDNBaseURL, "/"), streamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrOffline
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("playlist fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return lastSegmentLine(body), nil
}

// lastSegmentLine discards comment lines (HLS tags start with '#') and
// blank lines, returning the last remaining line, which is the newest
// segment URI in a live media playlist.
func lastSegmentLine(playlist []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(playlist))
	last := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		last = line
	}
	return last
}

// FetchSegment downloads a single media segment, bounded by a 15s
// deadline regardless of the caller's context.
func (f *HTTPPlaylistFetcher) FetchSegment(ctx context.Context, segmentURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, segmentFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segmentURL, nil)
	if err != nil {
		return nil, err
	}
	client := *f.Client
	client.Timeout = segmentFetchTimeout
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("segment fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

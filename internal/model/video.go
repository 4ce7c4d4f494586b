package model

import (
	"regexp"
	"strconv"
	"time"
)

// DurationClass buckets a video by runtime.
type DurationClass string

const (
	DurationShort DurationClass = "short"
	DurationLong  DurationClass = "long"
)

// ShortMaxSeconds is the longest runtime still classified as short.
const ShortMaxSeconds = 60

// VideoRecord holds the statistics fetched for one candidate video.
type VideoRecord struct {
	ID            string        `json:"id" csv:"video_id" yaml:"id"`
	URL           string        `json:"url" csv:"video_url" yaml:"url"`
	Title         string        `json:"title" csv:"title" yaml:"title"`
	Channel       string        `json:"channel" csv:"channel" yaml:"channel"`
	PublishedAt   time.Time     `json:"published_at" csv:"published_at" yaml:"published_at"`
	Duration      string        `json:"duration" csv:"duration" yaml:"duration"`
	DurationClass DurationClass `json:"duration_class" csv:"duration_class" yaml:"duration_class"`
	ViewCount     int64         `json:"view_count" csv:"view_count" yaml:"view_count"`
	LikeCount     int64         `json:"like_count" csv:"like_count" yaml:"like_count"`
	CommentCount  int64         `json:"comment_count" csv:"comment_count" yaml:"comment_count"`
}

// WatchURL returns the canonical watch page URL for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

var (
	isoHours   = regexp.MustCompile(`(\d+)H`)
	isoMinutes = regexp.MustCompile(`(\d+)M`)
	isoSeconds = regexp.MustCompile(`(\d+)S`)
)

// DurationSeconds parses an ISO-8601 duration such as "PT1H2M3S".
// Unknown components count as zero.
func DurationSeconds(iso string) int {
	total := 0
	for _, p := range []struct {
		re  *regexp.Regexp
		mul int
	}{{isoHours, 3600}, {isoMinutes, 60}, {isoSeconds, 1}} {
		if m := p.re.FindStringSubmatch(iso); m != nil {
			n, _ := strconv.Atoi(m[1])
			total += n * p.mul
		}
	}
	return total
}

// ClassifyDuration maps an ISO-8601 duration to a DurationClass.
func ClassifyDuration(iso string) DurationClass {
	if DurationSeconds(iso) <= ShortMaxSeconds {
		return DurationShort
	}
	return DurationLong
}

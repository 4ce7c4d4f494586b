package video

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/pkg/youtube"
)

const (
	// SearchPageMax is the largest page search.list serves.
	SearchPageMax = 50
	// StatsBatch is the number of ids per videos.list call.
	StatsBatch = 50
)

// SearchIDs pages through search results until max ids are gathered or the
// results run out. Ids are returned in result order.
func SearchIDs(ctx context.Context, c youtube.Client, query string, after, before time.Time, max int) ([]string, error) {
	var ids []string
	token := ""
	for len(ids) < max {
		want := min(max-len(ids), SearchPageMax)
		page, err := c.Search(ctx, youtube.SearchRequest{
			Query:           query,
			PublishedAfter:  after,
			PublishedBefore: before,
			Order:           "viewCount",
			MaxResults:      int64(want),
			PageToken:       token,
		})
		if err != nil {
			return ids, eris.Wrapf(err, "video: search %q", query)
		}
		ids = append(ids, page.VideoIDs...)
		if page.NextPageToken == "" || len(page.VideoIDs) == 0 {
			break
		}
		token = page.NextPageToken
	}
	if len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

// FetchStats resolves statistics for ids in batches of StatsBatch. Ids the
// platform does not return are skipped; output follows input order.
func FetchStats(ctx context.Context, c youtube.Client, ids []string) ([]model.VideoRecord, error) {
	out := make([]model.VideoRecord, 0, len(ids))
	for start := 0; start < len(ids); start += StatsBatch {
		end := min(start+StatsBatch, len(ids))
		batch, err := c.Videos(ctx, ids[start:end])
		if err != nil {
			return out, eris.Wrap(err, "video: fetch statistics")
		}
		byID := make(map[string]youtube.Video, len(batch))
		for _, v := range batch {
			byID[v.ID] = v
		}
		for _, id := range ids[start:end] {
			if v, ok := byID[id]; ok {
				out = append(out, ToRecord(v))
			}
		}
	}
	return out, nil
}

// ToRecord converts a platform video into a VideoRecord.
func ToRecord(v youtube.Video) model.VideoRecord {
	published, _ := time.Parse(time.RFC3339, v.PublishedAt)
	return model.VideoRecord{
		ID:            v.ID,
		URL:           model.WatchURL(v.ID),
		Title:         v.Title,
		Channel:       v.ChannelTitle,
		PublishedAt:   published,
		Duration:      v.Duration,
		DurationClass: model.ClassifyDuration(v.Duration),
		ViewCount:     int64(v.ViewCount),
		LikeCount:     int64(v.LikeCount),
		CommentCount:  int64(v.CommentCount),
	}
}

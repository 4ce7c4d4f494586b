package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/sells-group/commentscope/pkg/youtube"
)

// fakeClient serves canned pages keyed by video or parent id. Page tokens
// are the decimal index of the next page.
type fakeClient struct {
	mu         sync.Mutex
	threads    map[string][]youtube.ThreadPage
	replies    map[string][]youtube.CommentPage
	threadErrs map[string][]error
	replyErrs  map[string]error
	calls      map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		threads:    map[string][]youtube.ThreadPage{},
		replies:    map[string][]youtube.CommentPage{},
		threadErrs: map[string][]error{},
		replyErrs:  map[string]error{},
		calls:      map[string]int{},
	}
}

func pageIndex(token string) int {
	var n int
	if token != "" {
		_, _ = fmt.Sscanf(token, "%d", &n)
	}
	return n
}

func (f *fakeClient) Search(context.Context, youtube.SearchRequest) (*youtube.SearchPage, error) {
	return &youtube.SearchPage{}, nil
}

func (f *fakeClient) Videos(context.Context, []string) ([]youtube.Video, error) {
	return nil, nil
}

func (f *fakeClient) CommentThreads(_ context.Context, videoID, token string) (*youtube.ThreadPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["threads:"+videoID]++
	if errs := f.threadErrs[videoID]; len(errs) > 0 {
		err := errs[0]
		f.threadErrs[videoID] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	pages := f.threads[videoID]
	i := pageIndex(token)
	if i >= len(pages) {
		return &youtube.ThreadPage{}, nil
	}
	p := pages[i]
	return &p, nil
}

func (f *fakeClient) Replies(_ context.Context, parentID, token string) (*youtube.CommentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["replies:"+parentID]++
	if err := f.replyErrs[parentID]; err != nil {
		return nil, err
	}
	pages := f.replies[parentID]
	i := pageIndex(token)
	if i >= len(pages) {
		return &youtube.CommentPage{}, nil
	}
	p := pages[i]
	return &p, nil
}

func (f *fakeClient) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// threadsWithReplies builds one page of n threads each reporting r replies,
// and registers r replies per thread split into pages of size per.
func (f *fakeClient) threadsWithReplies(videoID string, n, r, per int) {
	var page youtube.ThreadPage
	for i := range n {
		id := fmt.Sprintf("%s-t%d", videoID, i)
		page.Threads = append(page.Threads, youtube.Thread{
			TopLevel:        youtube.Comment{ID: id, Text: "top " + id, LikeCount: int64(i)},
			TotalReplyCount: int64(r),
		})
		var replies []youtube.CommentPage
		for j := 0; j < r; j += per {
			var cp youtube.CommentPage
			for k := j; k < min(j+per, r); k++ {
				cp.Comments = append(cp.Comments, youtube.Comment{ID: fmt.Sprintf("%s-r%d", id, k), Text: "reply"})
			}
			if j+per < r {
				cp.NextPageToken = fmt.Sprintf("%d", len(replies)+1)
			}
			replies = append(replies, cp)
		}
		f.replies[id] = replies
	}
	f.threads[videoID] = append(f.threads[videoID], page)
}

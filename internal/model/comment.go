package model

// CommentRecord is one collected top-level comment or reply.
type CommentRecord struct {
	VideoID       string        `json:"video_id" csv:"video_id"`
	VideoTitle    string        `json:"video_title" csv:"video_title"`
	DurationClass DurationClass `json:"duration_class" csv:"duration_class"`
	CommentID     string        `json:"comment_id" csv:"comment_id"`
	ParentID      string        `json:"parent_id,omitempty" csv:"parent_id"`
	IsReply       bool          `json:"is_reply" csv:"is_reply"`
	Author        string        `json:"author" csv:"author"`
	Text          string        `json:"text" csv:"text"`
	PublishedAt   string        `json:"published_at" csv:"published_at"`
	LikeCount     int64         `json:"like_count" csv:"like_count"`
}

// SampleMeta records how a comment sample was drawn.
type SampleMeta struct {
	TotalRows          int    `json:"total_rows" yaml:"total_rows"`
	UniqueRows         int    `json:"unique_rows" yaml:"unique_rows"`
	TopN               int    `json:"top_n" yaml:"top_n"`
	RandomN            int    `json:"random_n" yaml:"random_n"`
	UsedTop            int    `json:"used_top" yaml:"used_top"`
	UsedRandom         int    `json:"used_random" yaml:"used_random"`
	SampledTarget      int    `json:"sampled_target" yaml:"sampled_target"`
	InputLines         int    `json:"llm_input_lines" yaml:"llm_input_lines"`
	InputChars         int    `json:"llm_input_chars" yaml:"llm_input_chars"`
	MaxCharsPerComment int    `json:"max_chars_per_comment" yaml:"max_chars_per_comment"`
	MaxTotalChars      int    `json:"max_total_chars" yaml:"max_total_chars"`
	DedupKey           string `json:"dedup_key" yaml:"dedup_key"`
	Error              string `json:"error,omitempty" yaml:"error,omitempty"`
}

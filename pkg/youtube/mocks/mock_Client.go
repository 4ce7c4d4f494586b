// Package mocks provides test doubles for the youtube client.
package mocks

import (
	"context"

	youtube "github.com/sells-group/commentscope/pkg/youtube"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, req
func (_m *MockClient) Search(ctx context.Context, req youtube.SearchRequest) (*youtube.SearchPage, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 *youtube.SearchPage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, youtube.SearchRequest) (*youtube.SearchPage, error)); ok {
		return rf(ctx, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*youtube.SearchPage)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Videos provides a mock function with given fields: ctx, ids
func (_m *MockClient) Videos(ctx context.Context, ids []string) ([]youtube.Video, error) {
	ret := _m.Called(ctx, ids)

	if len(ret) == 0 {
		panic("no return value specified for Videos")
	}

	var r0 []youtube.Video
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []string) ([]youtube.Video, error)); ok {
		return rf(ctx, ids)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]youtube.Video)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// CommentThreads provides a mock function with given fields: ctx, videoID, pageToken
func (_m *MockClient) CommentThreads(ctx context.Context, videoID string, pageToken string) (*youtube.ThreadPage, error) {
	ret := _m.Called(ctx, videoID, pageToken)

	if len(ret) == 0 {
		panic("no return value specified for CommentThreads")
	}

	var r0 *youtube.ThreadPage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*youtube.ThreadPage, error)); ok {
		return rf(ctx, videoID, pageToken)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*youtube.ThreadPage)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Replies provides a mock function with given fields: ctx, parentID, pageToken
func (_m *MockClient) Replies(ctx context.Context, parentID string, pageToken string) (*youtube.CommentPage, error) {
	ret := _m.Called(ctx, parentID, pageToken)

	if len(ret) == 0 {
		panic("no return value specified for Replies")
	}

	var r0 *youtube.CommentPage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*youtube.CommentPage, error)); ok {
		return rf(ctx, parentID, pageToken)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*youtube.CommentPage)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

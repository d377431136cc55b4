package fetcher

import (
	"context"
	"strings"

	"vkwatch/internal/vk"
)

// VK adapts a vk.Client to Source.
type VK struct {
	Client *vk.Client
}

var _ Source = VK{}

func (s VK) WallPosts(ctx context.Context, groupID int64, count int) ([]Post, error) {
	items, err := s.Client.WallGet(ctx, groupID, count)
	if err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(items))
	for _, it := range items {
		out = append(out, Post{ID: it.ID, Text: it.Text, CommentCount: it.Comments.Count})
	}
	return out, nil
}

func (s VK) WallComments(ctx context.Context, groupID, postID int64, count int) ([]Comment, error) {
	items, err := s.Client.WallGetComments(ctx, groupID, postID, count)
	if err != nil {
		return nil, err
	}
	out := make([]Comment, 0, len(items))
	for _, it := range items {
		out = append(out, Comment{ID: it.ID, AuthorID: it.FromID, Text: it.Text})
	}
	return out, nil
}

func (s VK) User(ctx context.Context, userID int64) (Author, error) {
	u, ok, err := s.Client.UsersGet(ctx, userID)
	if err != nil || !ok {
		return Author{ID: userID}, err
	}
	a := Author{
		ID:          u.ID,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		PhotoURL:    u.Photo200,
	}
	if u.City != nil {
		a.City = u.City.Title
	}
	return a, nil
}

func (s VK) Group(ctx context.Context, handle string) (Page, error) {
	g, err := s.Client.GroupsGetByID(ctx, handle)
	if err != nil {
		return Page{}, err
	}
	domain := g.ScreenName
	if domain == "" {
		domain = handle
	}
	return Page{Domain: strings.ToLower(domain), GroupID: g.ID, Name: g.Name}, nil
}

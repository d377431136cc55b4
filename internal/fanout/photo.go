package fanout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxPhotoBytes = 10 << 20

var errEmptyPhoto = errors.New("empty photo body")

func (s *Service) downloadPhoto(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	timeout := s.cfg.PhotoTimeout
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photo: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("photo: larger than %d bytes", maxPhotoBytes)
	}
	if len(data) == 0 {
		return nil, errEmptyPhoto
	}
	return data, nil
}

package anilist

import (
	"context"
	"fmt"

	"github.com/amaumene/watchsync/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const saveMediaListEntryMutation = `
mutation ($mediaId: Int, $progress: Int, $status: MediaListStatus) {
  SaveMediaListEntry (mediaId: $mediaId, progress: $progress, status: $status) {
    id
    progress
    status
  }
}`

const mediaListCollectionQuery = `
query ($userId: Int) {
  MediaListCollection(userId: $userId, type: ANIME) {
    lists {
      name
      entries {
        id
        mediaId
        status
        score
        progress
        media {
          id
          episodes
          title {
            romaji
            english
          }
        }
      }
    }
  }
}`

const viewerQuery = `
query {
  Viewer {
    id
    name
  }
}`

// SaveResult is the tracker's echo of a saved list entry
type SaveResult struct {
	ID       int                   `json:"id"`
	Progress int                   `json:"progress"`
	Status   models.TrackingStatus `json:"status"`
}

// Viewer is the user owning an access token
type Viewer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SetStatus saves the status and episode progress of a media item on the user's list
func (c *Client) SetStatus(ctx context.Context, mediaID, progress int, status models.TrackingStatus, accessToken string) (*SaveResult, error) {
	if accessToken == "" {
		return nil, &TrackingServiceError{Message: "access token is required"}
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid tracking status %q", status)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("media.id", mediaID),
		attribute.Int("media.progress", progress),
		attribute.String("media.status", string(status)),
	)

	var data struct {
		SaveMediaListEntry SaveResult `json:"SaveMediaListEntry"`
	}
	variables := map[string]interface{}{
		"mediaId":  mediaID,
		"progress": progress,
		"status":   string(status),
	}
	if err := c.doRequest(ctx, "SaveMediaListEntry", saveMediaListEntryMutation, variables, accessToken, &data); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"media_id": mediaID,
		"progress": data.SaveMediaListEntry.Progress,
		"status":   data.SaveMediaListEntry.Status,
	}).Info("Saved AniList list entry")

	return &data.SaveMediaListEntry, nil
}

// GetUserMediaList retrieves every anime list entry of a user, flattened across lists
func (c *Client) GetUserMediaList(ctx context.Context, userID int, accessToken string) ([]models.MediaListEntry, error) {
	var data struct {
		MediaListCollection struct {
			Lists []struct {
				Name    string `json:"name"`
				Entries []struct {
					ID       int                   `json:"id"`
					MediaID  int                   `json:"mediaId"`
					Status   models.TrackingStatus `json:"status"`
					Score    float64               `json:"score"`
					Progress int                   `json:"progress"`
					Media    struct {
						Episodes int `json:"episodes"`
						Title    struct {
							Romaji  string `json:"romaji"`
							English string `json:"english"`
						} `json:"title"`
					} `json:"media"`
				} `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}

	variables := map[string]interface{}{"userId": userID}
	if err := c.doRequest(ctx, "MediaListCollection", mediaListCollectionQuery, variables, accessToken, &data); err != nil {
		return nil, fmt.Errorf("failed to get media list: %w", err)
	}

	var entries []models.MediaListEntry
	for _, list := range data.MediaListCollection.Lists {
		for _, e := range list.Entries {
			title := e.Media.Title.English
			if title == "" {
				title = e.Media.Title.Romaji
			}
			entries = append(entries, models.MediaListEntry{
				ID:            e.ID,
				MediaID:       e.MediaID,
				Status:        e.Status,
				Progress:      e.Progress,
				Score:         e.Score,
				Title:         title,
				TotalEpisodes: e.Media.Episodes,
			})
		}
	}

	return entries, nil
}

// GetViewer returns the user the access token belongs to
func (c *Client) GetViewer(ctx context.Context, accessToken string) (*Viewer, error) {
	var data struct {
		Viewer *Viewer `json:"Viewer"`
	}
	if err := c.doRequest(ctx, "Viewer", viewerQuery, nil, accessToken, &data); err != nil {
		return nil, fmt.Errorf("failed to get viewer: %w", err)
	}
	if data.Viewer == nil {
		return nil, &TrackingServiceError{Message: "token does not belong to a user"}
	}
	return data.Viewer, nil
}

package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/communimeter/verify-worker/internal/consensus"
	"github.com/communimeter/verify-worker/internal/db"
	"github.com/communimeter/verify-worker/internal/mq"
	"github.com/communimeter/verify-worker/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voteBody(readingID, verifierID, vote string) []byte {
	return []byte(fmt.Sprintf(
		`{"request_id":"req-1","reading_id":%q,"verifier_id":%q,"vote":%q}`,
		readingID, verifierID, vote,
	))
}

func TestHandleVoteMessage_MalformedIDIsPermanent(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakePublisher{})

	err := svc.HandleVoteMessage(context.Background(), voteBody("not-a-uuid", uuid.NewString(), "correct"))

	require.Error(t, err)
	assert.True(t, mq.IsPermanent(err))
}

func TestHandleVoteMessage_PreconditionFailureIsPermanent(t *testing.T) {
	readingID := uuid.New()
	ownerID := uuid.New()

	store := &fakeStore{
		reading: &db.Reading{
			ID:                 readingID,
			UserID:             ownerID,
			VerificationStatus: consensus.StatusPending,
		},
	}
	svc := newTestService(store, &fakePublisher{})

	err := svc.HandleVoteMessage(context.Background(), voteBody(readingID.String(), ownerID.String(), "correct"))

	require.ErrorIs(t, err, service.ErrOwnReading)
	assert.True(t, mq.IsPermanent(err))
}

func TestHandleVoteMessage_InfrastructureFailureIsTransient(t *testing.T) {
	store := &fakeStore{beginErr: errors.New("connection refused")}
	svc := newTestService(store, &fakePublisher{})

	err := svc.HandleVoteMessage(context.Background(), voteBody(uuid.NewString(), uuid.NewString(), "correct"))

	require.Error(t, err)
	assert.False(t, mq.IsPermanent(err))
}

package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/okian/duel/internal/domain/model"
)

type entityDoc struct {
	ID         string    `bson:"_id"`
	Slug       string    `bson:"slug"`
	Name       string    `bson:"name"`
	Profession string    `bson:"profession"`
	Category   string    `bson:"category"`
	Gender     string    `bson:"gender"`
	Status     string    `bson:"status"`
	Visibility string    `bson:"visibility"`
	ImageURL   string    `bson:"imageUrl"`
	CreatedAt  time.Time `bson:"createdAt"`
}

func toEntityDoc(e model.Entity) entityDoc {
	return entityDoc{
		ID: e.ID, Slug: e.Slug, Name: e.Name, Profession: e.Profession, Category: e.Category,
		Gender: e.Gender, Status: string(e.Status), Visibility: string(e.Visibility),
		ImageURL: e.ImageURL, CreatedAt: e.CreatedAt.UTC(),
	}
}

func (d entityDoc) model() model.Entity {
	return model.Entity{
		ID: d.ID, Slug: d.Slug, Name: d.Name, Profession: d.Profession, Category: d.Category,
		Gender: d.Gender, Status: model.Status(d.Status), Visibility: model.Visibility(d.Visibility),
		ImageURL: d.ImageURL, CreatedAt: d.CreatedAt,
	}
}

type poolDoc struct {
	ID       string `bson:"_id"`
	GroupID  string `bson:"groupId"`
	EntityID string `bson:"entityId"`
}

type ratingDoc struct {
	ID          string    `bson:"_id"`
	Context     string    `bson:"context"`
	GroupID     string    `bson:"groupId"`
	Segment     string    `bson:"segment"`
	EntityID    string    `bson:"entityId"`
	Rating      float64   `bson:"rating"`
	Wins        int64     `bson:"wins"`
	Losses      int64     `bson:"losses"`
	Comparisons int64     `bson:"comparisons"`
	Version     int64     `bson:"version"`
	RecentVotes []string  `bson:"recentVotes"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func toRatingDoc(r model.Rating) ratingDoc {
	return ratingDoc{
		ID:      ratingID(r.Scope, r.EntityID),
		Context: string(r.Scope.Context), GroupID: r.Scope.GroupID, Segment: r.Scope.Segment,
		EntityID: r.EntityID, Rating: r.Rating, Wins: r.Wins, Losses: r.Losses,
		Comparisons: r.Comparisons, Version: r.Version, RecentVotes: r.RecentVotes, UpdatedAt: r.UpdatedAt,
	}
}

func (d ratingDoc) model() model.Rating {
	return model.Rating{
		Scope:    model.Scope{Context: model.Context(d.Context), GroupID: d.GroupID, Segment: d.Segment},
		EntityID: d.EntityID, Rating: d.Rating, Wins: d.Wins, Losses: d.Losses,
		Comparisons: d.Comparisons, Version: d.Version, RecentVotes: d.RecentVotes, UpdatedAt: d.UpdatedAt,
	}
}

type pairDoc struct {
	ID          string    `bson:"_id"`
	Context     string    `bson:"context"`
	GroupID     string    `bson:"groupId"`
	Segment     string    `bson:"segment"`
	EntityA     string    `bson:"entityA"`
	EntityB     string    `bson:"entityB"`
	AWins       int64     `bson:"aWins"`
	BWins       int64     `bson:"bWins"`
	Comparisons int64     `bson:"comparisons"`
	Version     int64     `bson:"version"`
	RecentVotes []string  `bson:"recentVotes"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func toPairDoc(p model.Pair) pairDoc {
	return pairDoc{
		ID:      pairID(p.Scope, p.EntityA, p.EntityB),
		Context: string(p.Scope.Context), GroupID: p.Scope.GroupID, Segment: p.Scope.Segment,
		EntityA: p.EntityA, EntityB: p.EntityB, AWins: p.AWins, BWins: p.BWins,
		Comparisons: p.Comparisons, Version: p.Version, RecentVotes: p.RecentVotes, UpdatedAt: p.UpdatedAt,
	}
}

func (d pairDoc) model() model.Pair {
	return model.Pair{
		Scope:   model.Scope{Context: model.Context(d.Context), GroupID: d.GroupID, Segment: d.Segment},
		EntityA: d.EntityA, EntityB: d.EntityB, AWins: d.AWins, BWins: d.BWins,
		Comparisons: d.Comparisons, Version: d.Version, RecentVotes: d.RecentVotes, UpdatedAt: d.UpdatedAt,
	}
}

type voteDoc struct {
	ID        string        `bson:"_id"`
	CreatedAt time.Time     `bson:"createdAt"`
	Context   string        `bson:"context"`
	GroupID   string        `bson:"groupId"`
	Segment   string        `bson:"segment"`
	LeftID    string        `bson:"leftId"`
	RightID   string        `bson:"rightId"`
	WinnerID  string        `bson:"winnerId"`
	Skipped   bool          `bson:"skipped"`
	SessionID string        `bson:"sessionId"`
	VoterID   string        `bson:"voterId"`
	Filters   model.Filters `bson:"filters"`
	Plan      *planDoc      `bson:"plan"`
	Steps     int64         `bson:"steps"`
	AppliedAt *time.Time    `bson:"appliedAt"`
}

type planDoc struct {
	LeftDelta  float64 `bson:"leftDelta"`
	RightDelta float64 `bson:"rightDelta"`
}

func toVoteDoc(v model.Vote) voteDoc {
	d := voteDoc{
		ID: v.ID, CreatedAt: v.CreatedAt.UTC(),
		Context: string(v.Scope.Context), GroupID: v.Scope.GroupID, Segment: v.Scope.Segment,
		LeftID: v.LeftID, RightID: v.RightID, WinnerID: v.WinnerID, Skipped: v.Skipped,
		SessionID: v.SessionID, VoterID: v.VoterID, Filters: v.Filters, AppliedAt: v.AppliedAt,
	}
	d.Steps = int64(v.Steps)
	if v.Plan != nil {
		d.Plan = &planDoc{LeftDelta: v.Plan.LeftDelta, RightDelta: v.Plan.RightDelta}
	}
	return d
}

func (d voteDoc) model() model.Vote {
	v := model.Vote{
		ID: d.ID, CreatedAt: d.CreatedAt,
		Scope:  model.Scope{Context: model.Context(d.Context), GroupID: d.GroupID, Segment: d.Segment},
		LeftID: d.LeftID, RightID: d.RightID, WinnerID: d.WinnerID, Skipped: d.Skipped,
		SessionID: d.SessionID, VoterID: d.VoterID, Filters: d.Filters, AppliedAt: d.AppliedAt,
	}
	v.Steps = model.VoteStep(d.Steps)
	if d.Plan != nil {
		v.Plan = &model.VotePlan{LeftDelta: d.Plan.LeftDelta, RightDelta: d.Plan.RightDelta}
	}
	return v
}

func scopeFilter(scope model.Scope) bson.M {
	return bson.M{"context": string(scope.Context), "groupId": scope.GroupID, "segment": scope.Segment}
}

func ratingID(scope model.Scope, entityID string) string { return scope.Key() + "|" + entityID }

func pairID(scope model.Scope, a, b string) string { return scope.Key() + "|" + a + "|" + b }

func poolID(groupID, entityID string) string { return groupID + "|" + entityID }

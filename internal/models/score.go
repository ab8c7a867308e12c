package models

import (
	"fmt"
	"time"
)

// Score records what a student earned for a StudentItem at a point in time.
// Scores are append-only; history is preserved for audit. A Score can be tied
// to a Submission but does not have to be: reset scores and non-courseware
// scoring (e.g. class participation) have no submission.
type Score struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	StudentItemID  uint        `gorm:"not null;index" json:"student_item_id"`
	SubmissionID   *uint       `gorm:"index" json:"submission_id"`
	PointsEarned   uint        `gorm:"not null;default:0" json:"points_earned"`
	PointsPossible uint        `gorm:"not null;default:0" json:"points_possible"`
	CreatedAt      time.Time   `gorm:"not null;index" json:"created_at"`
	Reset          bool        `gorm:"not null;default:false" json:"reset"`
	StudentItem    StudentItem `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Submission     *Submission `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// ToFloat calculates points earned over points possible. The second return
// value is false when the ratio is undefined (points possible is zero, i.e.
// the score is hidden).
func (s Score) ToFloat() (float64, bool) {
	if s.PointsPossible == 0 {
		return 0, false
	}
	return float64(s.PointsEarned) / float64(s.PointsPossible), true
}

// IsHidden reports whether the score is suppressed from learner-facing reads.
// By convention a score of x/0 is never displayed to users.
func (s Score) IsHidden() bool {
	return s.PointsPossible == 0
}

func (s Score) String() string {
	return fmt.Sprintf("%d/%d", s.PointsEarned, s.PointsPossible)
}

// ScoreSummary is the running store of the highest and most recent Scores for
// a StudentItem. One row per StudentItem, created on its first Score and
// updated transactionally on every subsequent insert.
type ScoreSummary struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	StudentItemID uint        `gorm:"not null;uniqueIndex" json:"student_item_id"`
	HighestID     uint        `gorm:"not null" json:"highest_id"`
	LatestID      uint        `gorm:"not null" json:"latest_id"`
	StudentItem   StudentItem `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Highest       Score       `gorm:"foreignKey:HighestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"highest"`
	Latest        Score       `gorm:"foreignKey:LatestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"latest"`
}

// ScoreAnnotation attaches extra information to an individual score, e.g. who
// applied a staff override and why.
type ScoreAnnotation struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ScoreID        uint   `gorm:"not null;index" json:"score_id"`
	AnnotationType string `gorm:"size:255;not null;index" json:"annotation_type"`
	Creator        string `gorm:"size:255;index" json:"creator"`
	Reason         string `gorm:"type:text" json:"reason"`
	Score          Score  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

package models

import "fmt"

// StudentItem represents a single gradable item for a single student in a
// single course. Rows are created lazily on first submission and never mutated.
type StudentItem struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	StudentID string `gorm:"size:255;not null;index;uniqueIndex:uq_student_items_identity,priority:2" json:"student_id"`
	CourseID  string `gorm:"size:255;not null;index;uniqueIndex:uq_student_items_identity,priority:1" json:"course_id"`
	ItemID    string `gorm:"size:255;not null;index;uniqueIndex:uq_student_items_identity,priority:3" json:"item_id"`
	ItemType  string `gorm:"size:100" json:"item_type"`
}

func (s StudentItem) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", s.StudentID, s.CourseID, s.ItemType, s.ItemID)
}

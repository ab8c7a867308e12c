package dto

// The xqueue wire format nests JSON documents as strings; these types model
// exactly what the legacy xqueue-watcher client produces and consumes.

// XQueueReply is the envelope every xqueue endpoint responds with.
// A return_code of 0 means success, 1 means failure.
type XQueueReply struct {
	ReturnCode int    `json:"return_code"`
	Content    string `json:"content"`
}

// LoginRequest authenticates a grader worker.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// XQueueHeader identifies one claimed submission. It travels as a JSON string
// inside both the get_submission payload and the put_result body.
type XQueueHeader struct {
	SubmissionID  uint   `json:"submission_id"`
	SubmissionKey string `json:"submission_key"`
}

// XQueuePayload is the content handed to a worker on a successful claim.
// Each field is itself a serialized JSON document.
type XQueuePayload struct {
	Header string `json:"xqueue_header"`
	Body   string `json:"xqueue_body"`
	Files  string `json:"xqueue_files"`
}

// XQueueSubmissionBody is the serialized xqueue_body of a claim payload.
type XQueueSubmissionBody struct {
	GraderPayload   string `json:"grader_payload"`
	StudentInfo     string `json:"student_info"`
	StudentResponse string `json:"student_response"`
}

// XQueueGraderPayload names the grader-side script for the queue record.
type XQueueGraderPayload struct {
	Grader string `json:"grader"`
}

// XQueueStudentInfo carries anonymized student metadata for the grader.
type XQueueStudentInfo struct {
	AnonymousStudentID string `json:"anonymous_student_id"`
	SubmissionTime     string `json:"submission_time"`
	RandomSeed         int    `json:"random_seed"`
}

// PutResultRequest is the raw body posted by a grader worker. Header and body
// are JSON strings that must be parsed and validated before use.
type PutResultRequest struct {
	XQueueHeader string `json:"xqueue_header"`
	XQueueBody   string `json:"xqueue_body"`
}

// XQueueScoreBody is the parsed xqueue_body of a put_result post.
type XQueueScoreBody struct {
	Score *float64 `json:"score"`
}

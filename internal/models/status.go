package models

import "github.com/campushq/sis-api/internal/transition"

// Subject types governed by the status transition protocol.
const (
	SubjectStudent      transition.SubjectType = "STUDENT"
	SubjectExamination  transition.SubjectType = "EXAMINATION"
	SubjectExamSchedule transition.SubjectType = "EXAM_SCHEDULE"
	SubjectLeaveRequest transition.SubjectType = "LEAVE_REQUEST"
	SubjectAcademicTerm transition.SubjectType = "ACADEMIC_TERM"
)

// Student statuses.
const (
	StudentActive      transition.Status = "ACTIVE"
	StudentSuspended   transition.Status = "SUSPENDED"
	StudentGraduated   transition.Status = "GRADUATED"
	StudentExpelled    transition.Status = "EXPELLED"
	StudentTransferred transition.Status = "TRANSFERRED"
)

// Examination statuses (aggregate parent).
const (
	ExaminationScheduled  transition.Status = "SCHEDULED"
	ExaminationInProgress transition.Status = "IN_PROGRESS"
	ExaminationCompleted  transition.Status = "COMPLETED"
)

// Exam schedule statuses (aggregate child).
const (
	ScheduleScheduled transition.Status = "SCHEDULED"
	ScheduleGraded    transition.Status = "GRADED"
)

// Leave request statuses.
const (
	LeavePending   transition.Status = "PENDING"
	LeaveApproved  transition.Status = "APPROVED"
	LeaveRejected  transition.Status = "REJECTED"
	LeaveCancelled transition.Status = "CANCELLED"
)

// Academic term statuses.
const (
	TermScheduled transition.Status = "SCHEDULED"
	TermActive    transition.Status = "ACTIVE"
	TermCompleted transition.Status = "COMPLETED"
)

// Trigger kinds recorded against transitions.
const (
	TriggerDisciplinaryAction = "disciplinary_action"
	TriggerExamResultBatch    = "exam_result_batch"
	TriggerLeaveDecision      = "leave_decision"
	TriggerPromotionBatch     = "promotion_batch"
	TriggerTermLifecycle      = "term_lifecycle"
)

// TransitionRules declares the state machine for every subject type. Route
// handlers never mutate status columns; everything funnels through the
// propagation engine configured with this registry.
func TransitionRules() transition.Registry {
	return transition.Registry{
		SubjectStudent: {
			Default:  StudentActive,
			Statuses: []transition.Status{StudentActive, StudentSuspended, StudentGraduated, StudentExpelled, StudentTransferred},
			Terminal: []transition.Status{StudentGraduated, StudentExpelled, StudentTransferred},
			Forbidden: []transition.Edge{
				// A suspension has to be lifted before the student leaves the roll.
				{From: StudentSuspended, To: StudentGraduated},
				{From: StudentSuspended, To: StudentTransferred},
			},
		},
		SubjectExamination: {
			Default:  ExaminationScheduled,
			Statuses: []transition.Status{ExaminationScheduled, ExaminationInProgress, ExaminationCompleted},
			Terminal: []transition.Status{ExaminationCompleted},
			Reopen: map[transition.Status]transition.Status{
				ExaminationCompleted: ExaminationInProgress,
			},
		},
		SubjectExamSchedule: {
			Default:  ScheduleScheduled,
			Statuses: []transition.Status{ScheduleScheduled, ScheduleGraded},
			Aggregate: &transition.AggregateRule{
				ParentType: SubjectExamination,
				ChildDone:  ScheduleGraded,
				InProgress: ExaminationInProgress,
				Completed:  ExaminationCompleted,
			},
		},
		SubjectLeaveRequest: {
			Default:  LeavePending,
			Statuses: []transition.Status{LeavePending, LeaveApproved, LeaveRejected, LeaveCancelled},
			Terminal: []transition.Status{LeaveApproved, LeaveRejected, LeaveCancelled},
		},
		SubjectAcademicTerm: {
			Default:  TermScheduled,
			Statuses: []transition.Status{TermScheduled, TermActive, TermCompleted},
			Terminal: []transition.Status{TermCompleted},
			Forbidden: []transition.Edge{
				// A term cannot complete without ever having been active.
				{From: TermScheduled, To: TermCompleted},
			},
		},
	}
}

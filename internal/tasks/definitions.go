package tasks

import "time"

// DefineTasks wires handler dependencies and registers all available tasks.
func DefineTasks(messenger Messenger, loc *time.Location) {
	LessonReminderTask.Messenger = messenger
	LessonReminderTask.Loc = loc
	InactivityScanTask.Messenger = messenger

	RegisterHandler(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)
	RegisterHandler(LessonReminderTask.TaskID(), LessonReminderTask.HandleExecution)
	RegisterHandler(InactivityScanTask.TaskID(), InactivityScanTask.HandleExecution)
}

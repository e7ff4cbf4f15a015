package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(ExpirePendingIntentsTask.TaskID(), ExpirePendingIntentsTask.HandleExecution)
	RegisterHandler(ExpireSubscriptionsTask.TaskID(), ExpireSubscriptionsTask.HandleExecution)
	RegisterHandler(PaymentReportTask.TaskID(), PaymentReportTask.HandleExecution)
}

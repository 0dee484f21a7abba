package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ExtractLatexActivity)
	w.RegisterActivity(a.AnalyzeFormulaActivity)
	w.RegisterActivity(a.VerifyLatexActivity)
	w.RegisterActivity(a.PublishProgressActivity)
	w.RegisterActivity(a.PersistRecognitionActivity)
}

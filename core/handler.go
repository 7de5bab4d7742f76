package core

type OnReportHandler func(reports Reports)

func MergeOnReportHandlers(handlers ...OnReportHandler) OnReportHandler {
	return func(reports Reports) {
		for _, handler := range handlers {
			if handler != nil {
				handler(reports)
			}
		}
	}
}

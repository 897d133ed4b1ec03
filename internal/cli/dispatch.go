package cli

import (
	"github.com/goliatone/go-command/dispatcher"

	mergecmd "github.com/goliatone/go-docmerge/command"
	"github.com/goliatone/go-docmerge/merge"
	mergeqry "github.com/goliatone/go-docmerge/query"
)

// subscribe routes docmerge messages to svc until the returned func is called.
func subscribe(svc merge.Service) func() {
	subs := []dispatcher.Subscription{
		dispatcher.SubscribeCommand(mergecmd.NewRunBatchHandler(svc)),
		dispatcher.SubscribeCommand(mergecmd.NewFillManualHandler(svc)),
		dispatcher.SubscribeQuery(mergeqry.NewListPlaceholdersHandler(svc)),
		dispatcher.SubscribeQuery(mergeqry.NewReconcileFieldsHandler(svc)),
		dispatcher.SubscribeQuery(mergeqry.NewManualFormHandler(svc)),
		dispatcher.SubscribeQuery(mergeqry.NewListBatchesHandler(svc)),
		dispatcher.SubscribeQuery(mergeqry.NewGetBatchHandler(svc)),
	}
	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
}

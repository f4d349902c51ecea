package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"

	ActionDatabaseTransactionFailed = "database_transaction_failed"
	ActionExternalServiceFailed     = "external_service_failed"

	ActionDeviceConnect    = "device_connect"
	ActionDeviceDisconnect = "device_disconnect"
	ActionDeviceProbe      = "device_probe"
	ActionMockLocation     = "set_mock_location"
	ActionLogin            = "app_login"
	ActionWorkoutStart     = "workout_start"
	ActionWorkoutFinish    = "workout_finish"

	ActionSessionCreate   = "session_create"
	ActionSessionStart    = "session_start"
	ActionSessionPause    = "session_pause"
	ActionSessionResume   = "session_resume"
	ActionSessionStop     = "session_stop"
	ActionSessionFinalize = "session_finalize"
	ActionSessionRecover  = "session_recover"

	ActionRouteGenerate = "route_generate"
	ActionRouteLoad     = "route_load"
	ActionRouteSave     = "route_save"
	ActionHistoryFlush  = "history_flush"
	ActionEventDispatch = "event_dispatch"
	ActionLeaseAcquire  = "lease_acquire"
	ActionLeaseRelease  = "lease_release"

	ActionPublishTelemetry    = "publish_telemetry"
	ActionPublishSessionEvent = "publish_session_event"
	ActionIssueToken          = "issue_token"
	ActionValidateToken       = "validate_token"

	ActionHTTPServerStart = "http_server_start"
	ActionHTTPServerStop  = "http_server_stop"
	ActionHTTPPanic       = "http_panic"
	ActionHealthCheck     = "health_check"
	ActionListSessions    = "list_sessions"
	ActionGetSession      = "get_session"
	ActionListHistory     = "list_history"
	ActionHistoryStats    = "history_stats"
	ActionHistoryTicks    = "history_ticks"
	ActionLiveSubscribe   = "ws_subscribe"
)

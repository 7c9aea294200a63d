// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestionTask represents the data structure for an asynchronous ingestion job.
// 文件本体已先行上传到对象存储，任务只携带取回所需的元信息。
type IngestionTask struct {
	Name         string `json:"name"`
	ObjectName   string `json:"object_name"`
	FileName     string `json:"file_name"`
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	DriveLink    string `json:"drive_link"`
	Namespace    string `json:"namespace"`
	CollectionID *uint  `json:"collection_id"`
	Restructure  bool   `json:"restructure"`
}

package service

// GeneralCollection receives content whose category is not a known topic.
const GeneralCollection = "ks_general"

type topicCollection struct {
	Topic      string
	Collection string
}

var topicCollections = []topicCollection{
	{"Politics", "ks_politics"},
	{"Environmentalism", "ks_environment"},
	{"SKCRF", "ks_skcrf"},
	{"Educational Trust", "ks_education"},
}

// CollectionForTopic maps a topic or content category to its collection.
func CollectionForTopic(topic string) string {
	for _, tc := range topicCollections {
		if tc.Topic == topic {
			return tc.Collection
		}
	}
	return GeneralCollection
}

// Topics returns the supported topics in display order.
func Topics() []string {
	topics := make([]string, len(topicCollections))
	for i, tc := range topicCollections {
		topics[i] = tc.Topic
	}
	return topics
}

// CollectionNames returns the topic collections followed by the general one.
func CollectionNames() []string {
	names := make([]string, 0, len(topicCollections)+1)
	for _, tc := range topicCollections {
		names = append(names, tc.Collection)
	}
	return append(names, GeneralCollection)
}

package list

// Expected check whether given item is equals to expected value
type Expected func(a interface{}) bool

// Consumer traverses list.
// It receives index and value as params, returns true to continue traversal, while returns false to break
type Consumer func(i int, v interface{}) bool

// List is the interface of linear table
type List interface {
	Add(val interface{})
	Get(index int) (val interface{})
	RemoveAllByVal(expected Expected) int
	Len() int
	ForEach(consumer Consumer)
	Contains(expected Expected) bool
}

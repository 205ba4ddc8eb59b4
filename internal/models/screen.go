package models

// ElementBounds 描述了一个屏幕元素的矩形边界。
type ElementBounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// ScreenElement 描述了屏幕上的一个可交互区域。
type ScreenElement struct {
	Text        string         `json:"text,omitempty"`         // 元素上的可见文本
	ContentDesc string         `json:"content_desc,omitempty"` // 无障碍描述文本
	ResourceID  string         `json:"resource_id,omitempty"`  // 资源标识符
	ClassName   string         `json:"class_name,omitempty"`   // 控件类名
	Clickable   bool           `json:"clickable"`              // 是否可点击
	CenterX     int            `json:"center_x"`               // 元素中心点 X 坐标
	CenterY     int            `json:"center_y"`               // 元素中心点 Y 坐标
	Bounds      *ElementBounds `json:"bounds,omitempty"`       // 元素边界 (可选)
}

// Label 返回元素的可读标签：优先取可见文本，其次取无障碍描述。
func (e *ScreenElement) Label() string {
	if e.Text != "" {
		return e.Text
	}
	return e.ContentDesc
}

// ScreenState 是一次屏幕状态采集的结果。
// 它是控制循环每次迭代的输入，不会被持久化。
type ScreenState struct {
	ScreenshotBase64 string          `json:"screenshot_base64,omitempty"` // PNG 截图的 base64 编码
	XML              string          `json:"xml,omitempty"`               // 原始无障碍树 XML
	ElementCount     int             `json:"element_count"`               // 屏幕上的元素总数
	DominantPackage  string          `json:"dominant_package,omitempty"`  // 屏幕上占主导地位的应用包名
	Elements         []ScreenElement `json:"elements,omitempty"`          // 可交互元素列表
}
